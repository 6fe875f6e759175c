package model

type ActiveStats struct {
	Uploads int   `json:"uploads"`
	Queued  int   `json:"queued"`
	Sent    int64 `json:"sent"`
}

type TotalStats struct {
	TotalUploaded int64 `json:"totalUploaded"`
	TasksFinished int64 `json:"tasksFinished"`
	TasksFailed   int64 `json:"tasksFailed"`
}

type Stats struct {
	Active ActiveStats `json:"active"`
	Totals TotalStats  `json:"totals"`
}
