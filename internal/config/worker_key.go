package config

type WorkerKeyStruct struct {
	EvaluateSubmissionQueue string
}

var WorkerKey = &WorkerKeyStruct{
	EvaluateSubmissionQueue: "evaluate_cq_submission_queue",
}
