// internal/message/sql.go
package message

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"smppd/internal/protocol"
)

// SQLStore 保存到 submitted_messages 表
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore 创建数据库存储
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const selectColumns = `SELECT message_id, system_id, service_type, source_addr, dest_addr,
	esm_class, data_coding, registered_delivery, content, submitted_at
	FROM submitted_messages`

// Accept 保存消息
func (s *SQLStore) Accept(ctx context.Context, systemID string, sm *protocol.SubmitSM) (string, error) {
	msg := newMessage(systemID, sm)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO submitted_messages
		(message_id, system_id, service_type, source_addr, dest_addr, esm_class, data_coding, registered_delivery, content, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		msg.ID,
		msg.SystemID,
		msg.ServiceType,
		msg.SourceAddr,
		msg.DestAddr,
		msg.ESMClass,
		msg.DataCoding,
		msg.RegisteredDelivery,
		msg.Content,
		msg.SubmittedAt,
	)
	if err != nil {
		return "", fmt.Errorf("保存短信失败: %w", err)
	}

	return msg.ID, nil
}

// Get 按ID查询
func (s *SQLStore) Get(ctx context.Context, id string) (*Message, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" WHERE message_id = ?", id)

	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("消息 %s: %w", id, ErrNotFound)
	}
	return msg, err
}

// Query 查询消息
func (s *SQLStore) Query(ctx context.Context, options QueryOptions) ([]*Message, error) {
	query := selectColumns + " WHERE 1=1"
	var params []interface{}

	if !options.StartTime.IsZero() {
		query += " AND submitted_at >= ?"
		params = append(params, options.StartTime)
	}
	if !options.EndTime.IsZero() {
		query += " AND submitted_at <= ?"
		params = append(params, options.EndTime)
	}
	if options.SystemID != "" {
		query += " AND system_id = ?"
		params = append(params, options.SystemID)
	}
	if options.SourceAddr != "" {
		query += " AND source_addr = ?"
		params = append(params, options.SourceAddr)
	}
	if options.DestAddr != "" {
		query += " AND dest_addr = ?"
		params = append(params, options.DestAddr)
	}

	query += " ORDER BY submitted_at DESC"

	if options.Limit > 0 {
		query += " LIMIT ?, ?"
		params = append(params, options.Offset, options.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("查询短信失败: %w", err)
	}
	defer rows.Close()

	result := make([]*Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, msg)
	}

	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row scanner) (*Message, error) {
	msg := &Message{}
	err := row.Scan(
		&msg.ID,
		&msg.SystemID,
		&msg.ServiceType,
		&msg.SourceAddr,
		&msg.DestAddr,
		&msg.ESMClass,
		&msg.DataCoding,
		&msg.RegisteredDelivery,
		&msg.Content,
		&msg.SubmittedAt,
	)
	if err != nil {
		return nil, err
	}
	return msg, nil
}
