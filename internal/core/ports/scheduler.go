package ports

import "time"

type SchedulerService interface {
	Start()
	Stop()
	// ScheduleTaskOnce runs task once at the given unix timestamp, or as soon
	// as possible if it is in the past.
	ScheduleTaskOnce(at int64, task func()) error
	ScheduleEvery(interval time.Duration, task func()) error
}
