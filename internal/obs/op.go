package obs

import (
	"time"

	"badgehub.org/internal/ids"
)

// Operation carries the context of one repository call for logging and
// metrics: operation name, entity type, optional entity id, start time.
// OpID is a fresh sortable identifier correlating the record across log
// lines; sorting records by it recovers start order.
type Operation struct {
	Engine  string
	Entity  string
	Name    string
	ID      string
	OpID    string
	started time.Time
}

// StartOperation opens an operation record.
func StartOperation(engine, entity, name, id string) *Operation {
	return &Operation{
		Engine:  engine,
		Entity:  entity,
		Name:    name,
		ID:      id,
		OpID:    ids.New(),
		started: time.Now(),
	}
}

// Finish closes the record, emitting one structured log line and the
// operation metrics. rows is the number of rows affected where known,
// -1 otherwise.
func (o *Operation) Finish(rows int64, err error) {
	if o == nil {
		return
	}
	elapsed := time.Since(o.started)

	status := "ok"
	if err != nil {
		status = "error"
	}
	dbOperationsTotal.WithLabelValues(o.Engine, o.Entity, o.Name, status).Inc()
	dbOperationDuration.WithLabelValues(o.Engine, o.Entity, o.Name).Observe(elapsed.Seconds())

	entry := map[string]any{
		"ts":          time.Now().UTC().Format(time.RFC3339Nano),
		"type":        "db_operation",
		"op_id":       o.OpID,
		"engine":      o.Engine,
		"entity":      o.Entity,
		"operation":   o.Name,
		"duration_ms": elapsed.Milliseconds(),
		"status":      status,
	}
	if o.ID != "" {
		entry["entity_id"] = o.ID
	}
	if rows >= 0 {
		entry["rows"] = rows
	}
	if err != nil {
		entry["error"] = err.Error()
	}
	LogEvent(entry)
}
