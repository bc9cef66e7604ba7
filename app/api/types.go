package api

import (
	"feedspider/app/database"
	"feedspider/app/tasks"
)

type Handler struct {
	sourceRepo database.SourceRepository
	entryRepo  database.EntryRepository
	scheduler  tasks.TaskSchedulerInterface
}
