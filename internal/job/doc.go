// Package job runs background work with at-least-once delivery.
//
// Jobs are persisted in a Store before they are placed on an in-memory Queue
// and consumed by a WorkerPool. The Runner records every attempt, retries
// failed jobs after a fixed delay until their attempt budget is spent, and on
// startup re-queues jobs left pending or processing by a previous process.
//
// DispatchJob is the only job type: it hands an ad script task to the n8n
// workflow and records dispatch failures on the task.
package job
