package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FiscalDocument is one computed value set as persisted for the
// stamping pipeline: the header fields the UI lists on, plus the full
// value-set JSON.
type FiscalDocument struct {
	ID                  uuid.UUID       `json:"id"`
	InvoiceID           uuid.UUID       `json:"invoice_id"`
	InvoiceName         string          `json:"invoice_name"`
	DocumentType        string          `json:"document_type"`
	CFDIDate            string          `json:"cfdi_date"`
	Currency            string          `json:"currency"`
	TotalWoDiscount     decimal.Decimal `json:"total_wo_discount"`
	TotalDiscount       decimal.Decimal `json:"total_discount"`
	TotalTaxTransferred decimal.Decimal `json:"total_tax_transferred"`
	TotalTaxWithholding decimal.Decimal `json:"total_tax_withholding"`
	ExternalTrade       bool            `json:"external_trade"`
	ValuesJSON          string          `json:"values_json"`
	ArchiveURL          string          `json:"archive_url,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           *time.Time      `json:"updated_at,omitempty"`
}

func SaveFiscalDocument(ctx context.Context, doc *FiscalDocument) error {
	// The caller assigns the ID up front so the archive path can use it.
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}

	query := `
		INSERT INTO fiscal_documents (
			id, invoice_id, invoice_name, document_type, cfdi_date, currency,
			total_wo_discount, total_discount, total_tax_transferred,
			total_tax_withholding, external_trade, values_json, archive_url
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at
	`

	err := Pool.QueryRow(ctx, query,
		doc.ID, doc.InvoiceID, doc.InvoiceName, doc.DocumentType, doc.CFDIDate, doc.Currency,
		doc.TotalWoDiscount, doc.TotalDiscount, doc.TotalTaxTransferred,
		doc.TotalTaxWithholding, doc.ExternalTrade, doc.ValuesJSON, doc.ArchiveURL,
	).Scan(&doc.CreatedAt)

	return err
}

func GetFiscalDocuments(ctx context.Context, limit int) ([]FiscalDocument, error) {
	query := `
		SELECT id, invoice_id, COALESCE(invoice_name, ''), COALESCE(document_type, ''),
		       COALESCE(cfdi_date, ''), COALESCE(currency, ''),
		       COALESCE(total_wo_discount, 0), COALESCE(total_discount, 0),
		       COALESCE(total_tax_transferred, 0), COALESCE(total_tax_withholding, 0),
		       external_trade, COALESCE(archive_url, ''), created_at
		FROM fiscal_documents
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []FiscalDocument
	for rows.Next() {
		var doc FiscalDocument
		err := rows.Scan(
			&doc.ID, &doc.InvoiceID, &doc.InvoiceName, &doc.DocumentType,
			&doc.CFDIDate, &doc.Currency,
			&doc.TotalWoDiscount, &doc.TotalDiscount,
			&doc.TotalTaxTransferred, &doc.TotalTaxWithholding,
			&doc.ExternalTrade, &doc.ArchiveURL, &doc.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	return docs, nil
}

// GetFiscalDocumentByID retrieves a single computed document by ID,
// including the full value-set JSON.
func GetFiscalDocumentByID(ctx context.Context, documentID string) (*FiscalDocument, error) {
	query := `
		SELECT id, invoice_id, COALESCE(invoice_name, ''), COALESCE(document_type, ''),
		       COALESCE(cfdi_date, ''), COALESCE(currency, ''),
		       COALESCE(total_wo_discount, 0), COALESCE(total_discount, 0),
		       COALESCE(total_tax_transferred, 0), COALESCE(total_tax_withholding, 0),
		       external_trade, COALESCE(values_json::text, ''), COALESCE(archive_url, ''),
		       created_at, updated_at
		FROM fiscal_documents
		WHERE id = $1
	`

	var doc FiscalDocument
	err := Pool.QueryRow(ctx, query, documentID).Scan(
		&doc.ID, &doc.InvoiceID, &doc.InvoiceName, &doc.DocumentType,
		&doc.CFDIDate, &doc.Currency,
		&doc.TotalWoDiscount, &doc.TotalDiscount,
		&doc.TotalTaxTransferred, &doc.TotalTaxWithholding,
		&doc.ExternalTrade, &doc.ValuesJSON, &doc.ArchiveURL,
		&doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// DeleteFiscalDocument removes a computed document
func DeleteFiscalDocument(ctx context.Context, documentID string) error {
	tag, err := Pool.Exec(ctx, `DELETE FROM fiscal_documents WHERE id = $1`, documentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s not found", documentID)
	}
	return nil
}

// MonthlyStats is one month of document counts and tax totals
type MonthlyStats struct {
	Month               string          `json:"month"`
	Documents           int             `json:"documents"`
	Transfers           int             `json:"transfers"`
	TotalTaxTransferred decimal.Decimal `json:"total_tax_transferred"`
}

// GetStats returns per-month stats for the last n months
func GetStats(ctx context.Context, months int) ([]MonthlyStats, error) {
	if months <= 0 {
		months = 6
	}

	query := `
		SELECT to_char(created_at, 'YYYY-MM') AS month,
		       COUNT(*),
		       COUNT(*) FILTER (WHERE document_type = 'T'),
		       COALESCE(SUM(total_tax_transferred), 0)
		FROM fiscal_documents
		WHERE created_at >= date_trunc('month', NOW()) - ($1 || ' months')::interval
		GROUP BY 1
		ORDER BY 1 DESC
	`

	rows, err := Pool.Query(ctx, query, fmt.Sprintf("%d", months))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []MonthlyStats
	for rows.Next() {
		var s MonthlyStats
		if err := rows.Scan(&s.Month, &s.Documents, &s.Transfers, &s.TotalTaxTransferred); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, nil
}
