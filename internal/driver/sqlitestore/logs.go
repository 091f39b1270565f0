package sqlitestore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/deckyfx/dnsgate/internal/driver"
)

// InsertLog persists one log entry.
func (db *DB) InsertLog(e driver.LogEntry) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	var (
		clientAddr   sql.NullString
		clientPort   sql.NullInt64
		transport    sql.NullString
		qname, qtype sql.NullString
		qclass       sql.NullString
		provider     sql.NullString
		responseTime sql.NullFloat64
		errText      sql.NullString
		eventJSON    sql.NullString
	)
	var cached, blocked, whitelisted, success bool

	if e.Client != nil {
		clientAddr = sql.NullString{String: e.Client.Address, Valid: true}
		clientPort = sql.NullInt64{Int64: int64(e.Client.Port), Valid: true}
		transport = sql.NullString{String: e.Client.Transport, Valid: true}
	}
	if e.Query != nil {
		qname = sql.NullString{String: e.Query.Name, Valid: true}
		qtype = sql.NullString{String: e.Query.Type, Valid: true}
		qclass = sql.NullString{String: e.Query.Class, Valid: true}
	}
	if e.Processing != nil {
		provider = sql.NullString{String: e.Processing.Provider, Valid: e.Processing.Provider != ""}
		responseTime = sql.NullFloat64{Float64: e.Processing.ResponseTime, Valid: e.Processing.ResponseTime > 0}
		errText = sql.NullString{String: e.Processing.Error, Valid: e.Processing.Error != ""}
		cached = e.Processing.Cached
		blocked = e.Processing.Blocked
		whitelisted = e.Processing.Whitelisted
		success = e.Processing.Success
	}
	if e.ServerEvent != nil {
		b, err := json.Marshal(e.ServerEvent)
		if err == nil {
			eventJSON = sql.NullString{String: string(b), Valid: true}
		}
	}

	query := `
		INSERT INTO log_entries (
			id, type, timestamp_ms, level,
			client_address, client_port, transport,
			qname, qtype, qclass,
			provider, response_time, cached, blocked, whitelisted, success,
			error, message, event_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.conn.Exec(query,
		e.ID, string(e.Type), e.Timestamp.UnixMilli(), string(e.Level),
		clientAddr, clientPort, transport,
		qname, qtype, qclass,
		provider, responseTime, cached, blocked, whitelisted, success,
		errText, e.Message, eventJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert log entry: %w", err)
	}
	return nil
}

// QueryLogs returns entries matching the filter, newest first.
func (db *DB) QueryLogs(f driver.LogFilter) ([]driver.LogEntry, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		where = append(where, cond)
		args = append(args, v)
	}

	if f.Type != "" {
		add("type = ?", string(f.Type))
	}
	if f.Level != "" {
		add("level = ?", string(f.Level))
	}
	if f.RequestID != "" {
		add("id = ?", f.RequestID)
	}
	if f.Domain != "" {
		add("qname LIKE ?", "%"+strings.ToLower(f.Domain)+"%")
	}
	if f.Provider != "" {
		add("provider = ?", f.Provider)
	}
	if f.ClientIP != "" {
		add("client_address = ?", f.ClientIP)
	}
	if !f.StartTime.IsZero() {
		add("timestamp_ms >= ?", f.StartTime.UnixMilli())
	}
	if !f.EndTime.IsZero() {
		add("timestamp_ms <= ?", f.EndTime.UnixMilli())
	}
	if f.Success != nil {
		add("success = ?", *f.Success)
	}
	if f.Cached != nil {
		add("cached = ?", *f.Cached)
	}
	if f.Blocked != nil {
		add("blocked = ?", *f.Blocked)
	}
	if f.Whitelisted != nil {
		add("whitelisted = ?", *f.Whitelisted)
	}

	query := `
		SELECT id, type, timestamp_ms, level,
		       client_address, client_port, transport,
		       qname, qtype, qclass,
		       provider, response_time, cached, blocked, whitelisted, success,
		       error, message, event_json
		FROM log_entries
	`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp_ms DESC, rowid DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	if f.Offset > 0 {
		if f.Limit <= 0 {
			query += " LIMIT -1"
		}
		query += " OFFSET ?"
		args = append(args, f.Offset)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query log entries: %w", err)
	}
	defer rows.Close()

	var out []driver.LogEntry
	for rows.Next() {
		e, err := scanLogEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating log entries: %w", err)
	}
	return out, nil
}

func scanLogEntry(rows *sql.Rows) (driver.LogEntry, error) {
	var (
		e            driver.LogEntry
		typ, level   string
		tsMillis     int64
		clientAddr   sql.NullString
		clientPort   sql.NullInt64
		transport    sql.NullString
		qname        sql.NullString
		qtype        sql.NullString
		qclass       sql.NullString
		provider     sql.NullString
		responseTime sql.NullFloat64
		cached       bool
		blocked      bool
		whitelisted  bool
		success      bool
		errText      sql.NullString
		eventJSON    sql.NullString
	)

	err := rows.Scan(
		&e.ID, &typ, &tsMillis, &level,
		&clientAddr, &clientPort, &transport,
		&qname, &qtype, &qclass,
		&provider, &responseTime, &cached, &blocked, &whitelisted, &success,
		&errText, &e.Message, &eventJSON,
	)
	if err != nil {
		return driver.LogEntry{}, fmt.Errorf("failed to scan log entry: %w", err)
	}

	e.Type = driver.EntryType(typ)
	e.Level = driver.Level(level)
	e.Timestamp = time.UnixMilli(tsMillis)

	if clientAddr.Valid {
		e.Client = &driver.ClientInfo{
			Address:   clientAddr.String,
			Port:      int(clientPort.Int64),
			Transport: transport.String,
		}
	}
	if qname.Valid {
		e.Query = &driver.QueryInfo{Name: qname.String, Type: qtype.String, Class: qclass.String}
	}
	if e.Type != driver.EntryServerEvent {
		e.Processing = &driver.ProcessingInfo{
			Provider:     provider.String,
			ResponseTime: responseTime.Float64,
			Cached:       cached,
			Blocked:      blocked,
			Whitelisted:  whitelisted,
			Success:      success,
			Error:        errText.String,
		}
	}
	if eventJSON.Valid {
		var ev driver.ServerEventInfo
		if err := json.Unmarshal([]byte(eventJSON.String), &ev); err == nil {
			e.ServerEvent = &ev
		}
	}
	return e, nil
}

// ClearLogs deletes every log entry.
func (db *DB) ClearLogs() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, err := db.conn.Exec("DELETE FROM log_entries"); err != nil {
		return fmt.Errorf("failed to clear log entries: %w", err)
	}
	return nil
}

// DeleteLogsBefore removes entries older than the cutoff and returns the
// number removed.
func (db *DB) DeleteLogsBefore(cutoff time.Time) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	res, err := db.conn.Exec("DELETE FROM log_entries WHERE timestamp_ms < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune log entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n, nil
}

// LogStats returns entry count and the timestamp range.
func (db *DB) LogStats() (driver.LogStats, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var (
		count            int
		oldest, newest   sql.NullInt64
	)
	row := db.conn.QueryRow("SELECT COUNT(*), MIN(timestamp_ms), MAX(timestamp_ms) FROM log_entries")
	if err := row.Scan(&count, &oldest, &newest); err != nil {
		return driver.LogStats{}, fmt.Errorf("failed to read log stats: %w", err)
	}

	stats := driver.LogStats{TotalEntries: count}
	if oldest.Valid {
		t := time.UnixMilli(oldest.Int64)
		stats.OldestEntry = &t
	}
	if newest.Valid {
		t := time.UnixMilli(newest.Int64)
		stats.NewestEntry = &t
	}
	return stats, nil
}
