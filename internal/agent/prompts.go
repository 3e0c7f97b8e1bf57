package agent

// plannerPrompt instructs the model to either ask one clarifying
// question or decompose the goal into tasks.
const plannerPrompt = `You are a project planning assistant. A user has stated a goal, possibly
with clarifying answers already collected. Decide whether the goal is
specific enough to decompose into concrete tasks.

If ONE more piece of information is essential before planning, respond
with exactly this JSON shape and nothing else:
{
  "question": {"text": "the question to ask", "required": true}
}

Otherwise decompose the goal into 2-10 concrete tasks and respond with
exactly this JSON shape and nothing else:
{
  "tasks": [
    {
      "title": "short task title",
      "detail": "what done looks like",
      "priority": "P0|P1|P2|P3",
      "estimate_hours": 4
    }
  ]
}

Rules:
- priority must be one of P0 (critical), P1 (high), P2 (medium), P3 (low)
- estimate_hours must be a positive number
- order tasks by the sequence they should be worked
- never ask a question you already have the answer to

Goal: %s
%s`

// prioritizerPrompt instructs the model to reassess task priorities.
const prioritizerPrompt = `You are a prioritization assistant. Review the following tasks for the
stated goal and reassign priorities where they are wrong. Respond with
a JSON array and nothing else, one entry per task you want to change:
[
  {"id": "task id", "priority": "P0|P1|P2|P3"}
]
Respond with [] if every priority is already correct.

Goal: %s

Tasks:
%s`

// estimatorPrompt instructs the model to refine effort estimates.
const estimatorPrompt = `You are an estimation assistant. Review the following tasks for the
stated goal and correct any effort estimate that looks unrealistic.
Respond with a JSON array and nothing else, one entry per task you
want to change:
[
  {"id": "task id", "estimate_hours": 6}
]
estimate_hours must be a positive number. Respond with [] if every
estimate is already reasonable.

Goal: %s

Tasks:
%s`

// schedulerPrompt instructs the model to package tasks into sprints.
const schedulerPrompt = `You are a sprint planning assistant. Group the following tasks into
one or more two-week sprints starting %s. Every task must appear in
exactly one sprint. Higher-priority tasks go into earlier sprints.
Respond with exactly this JSON shape and nothing else:
{
  "sprints": [
    {
      "name": "Sprint 1",
      "start_date": "2006-01-02",
      "end_date": "2006-01-02",
      "task_ids": ["id1", "id2"]
    }
  ]
}

Goal: %s

Tasks:
%s`
