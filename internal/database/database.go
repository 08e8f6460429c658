package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/devops-ind/jenkins-ha-sub004/internal/models"
)

func InitDB(dbPath string) *sql.DB {
	log.Println("Initializing audit database connection")

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		log.Fatal("Failed to open audit database:", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		log.Fatal("Failed to connect to audit database:", err)
	}
	log.Printf("Successfully connected to audit database at %s", dbPath)

	// The audit log is append-only: transactions are inserted once, at
	// their terminal state, and never updated.
	createTable := `
	CREATE TABLE IF NOT EXISTS switch_transactions (
		id TEXT PRIMARY KEY,
		team TEXT NOT NULL,
		operation TEXT NOT NULL,
		from_slot TEXT NOT NULL,
		to_slot TEXT NOT NULL,
		steps TEXT NOT NULL,
		outcome TEXT NOT NULL,
		reason TEXT,
		duration_ms INTEGER NOT NULL,
		started_at DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`

	_, err = db.Exec(createTable)
	if err != nil {
		log.Fatal("Failed to create audit table:", err)
	}
	log.Println("Audit database tables initialized")

	return db
}

// AppendTransaction records one terminal switch transaction.
func AppendTransaction(db *sql.DB, tx *models.SwitchTransaction) error {
	steps, err := json.Marshal(tx.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction steps: %w", err)
	}

	stmt, err := db.Prepare(`INSERT INTO switch_transactions
		(id, team, operation, from_slot, to_slot, steps, outcome, reason, duration_ms, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare audit insert: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(tx.ID, tx.Team, string(tx.Operation), string(tx.FromSlot), string(tx.ToSlot),
		string(steps), string(tx.Outcome), tx.Reason, tx.Duration.Milliseconds(), tx.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}

// ListTransactions returns the most recent transactions, newest first.
func ListTransactions(db *sql.DB, limit int) ([]models.SwitchTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`SELECT id, team, operation, from_slot, to_slot, steps, outcome, reason, duration_ms, started_at
		FROM switch_transactions ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// TeamTransactions returns one team's transactions, newest first.
func TeamTransactions(db *sql.DB, team string, limit int) ([]models.SwitchTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`SELECT id, team, operation, from_slot, to_slot, steps, outcome, reason, duration_ms, started_at
		FROM switch_transactions WHERE team = ? ORDER BY created_at DESC LIMIT ?`, team, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

func scanTransactions(rows *sql.Rows) ([]models.SwitchTransaction, error) {
	var out []models.SwitchTransaction
	for rows.Next() {
		var tx models.SwitchTransaction
		var operation, fromSlot, toSlot, steps, outcome string
		var durationMS int64
		var startedAt time.Time

		if err := rows.Scan(&tx.ID, &tx.Team, &operation, &fromSlot, &toSlot, &steps, &outcome, &tx.Reason, &durationMS, &startedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}

		tx.Operation = models.Operation(operation)
		tx.FromSlot = models.Slot(fromSlot)
		tx.ToSlot = models.Slot(toSlot)
		tx.Outcome = models.Outcome(outcome)
		tx.Duration = time.Duration(durationMS) * time.Millisecond
		tx.StartedAt = startedAt

		if err := json.Unmarshal([]byte(steps), &tx.Steps); err != nil {
			return nil, fmt.Errorf("failed to decode transaction steps: %w", err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}
