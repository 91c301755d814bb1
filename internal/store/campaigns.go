// ABOUTME: Campaign tracker operations for batch fan-out lifecycle
// ABOUTME: Create, replace-style progress updates, lookup and recent-first listing

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CreateCampaign records a new campaign. The caller supplies CampaignID,
// Type, TotalRecipients and MessageTemplate; lifecycle fields are filled in
// here. Returns ErrDuplicateCampaign if the id is already tracked.
func (s *SQLiteStore) CreateCampaign(ctx context.Context, c *Campaign) error {
	c.Status = CampaignStatusStarted
	c.Successful = 0
	c.Failed = 0
	c.Pending = c.TotalRecipients
	c.EstimatedCost = EstimatedCost(c.TotalRecipients)
	c.ActualCost = "0.00"
	if c.StartTime.IsZero() {
		c.StartTime = time.Now().UTC()
	}
	if c.Details == nil {
		c.Details = []CampaignDetail{}
	}

	detailsJSON, err := json.Marshal(c.Details)
	if err != nil {
		return fmt.Errorf("encoding details: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO campaigns (
			campaign_id, type, status, total_recipients, successful, failed,
			message_template, details_json, estimated_cost, actual_cost, start_time, end_time
		) VALUES (?, ?, ?, ?, 0, 0, ?, ?, ?, '0.00', ?, NULL)
	`,
		c.CampaignID,
		c.Type,
		c.Status,
		c.TotalRecipients,
		c.MessageTemplate,
		string(detailsJSON),
		c.EstimatedCost,
		formatTime(c.StartTime),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateCampaign
		}
		return fmt.Errorf("inserting campaign: %w", err)
	}

	s.logger.Info("campaign created",
		"campaign_id", c.CampaignID,
		"type", c.Type,
		"total_recipients", c.TotalRecipients,
	)
	return nil
}

// UpdateCampaignProgress replaces the stored counts and details with the
// supplied cumulative totals, recomputes pending and actual cost, and marks
// the campaign completed when an end time is present. The read and write run
// in one transaction so updates for the same campaign are serialized; the
// last write wins for out-of-order callers. Returns ErrNotFound for unknown
// ids.
func (s *SQLiteStore) UpdateCampaignProgress(ctx context.Context, campaignID string, progress CampaignProgress) (*Campaign, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning update transaction: %w", err)
	}
	defer tx.Rollback()

	c, err := scanCampaign(tx.QueryRowContext(ctx, selectCampaign+` WHERE campaign_id = ?`, campaignID))
	if err != nil {
		return nil, err
	}

	c.Successful = progress.Successful
	c.Failed = progress.Failed
	c.Pending = c.TotalRecipients - c.Successful - c.Failed
	if c.Pending < 0 {
		c.Pending = 0
	}
	c.ActualCost = EstimatedCost(c.Successful)
	if progress.Details != nil {
		c.Details = progress.Details
	}
	if progress.EndTime != nil {
		t := progress.EndTime.UTC()
		c.EndTime = &t
		c.Status = CampaignStatusCompleted
	} else {
		c.Status = CampaignStatusInProgress
	}

	detailsJSON, err := json.Marshal(c.Details)
	if err != nil {
		return nil, fmt.Errorf("encoding details: %w", err)
	}

	var endTime any
	if c.EndTime != nil {
		endTime = formatTime(*c.EndTime)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE campaigns
		SET status = ?, successful = ?, failed = ?, details_json = ?, actual_cost = ?, end_time = ?
		WHERE campaign_id = ?
	`,
		c.Status,
		c.Successful,
		c.Failed,
		string(detailsJSON),
		c.ActualCost,
		endTime,
		campaignID,
	)
	if err != nil {
		return nil, fmt.Errorf("updating campaign: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing update: %w", err)
	}

	s.logger.Info("campaign updated",
		"campaign_id", campaignID,
		"successful", c.Successful,
		"failed", c.Failed,
		"status", c.Status,
	)
	return c, nil
}

// GetCampaign retrieves the full campaign record including details.
func (s *SQLiteStore) GetCampaign(ctx context.Context, campaignID string) (*Campaign, error) {
	return scanCampaign(s.db.QueryRowContext(ctx, selectCampaign+` WHERE campaign_id = ?`, campaignID))
}

// ListCampaigns returns the limit most recently started campaigns as
// lightweight summaries without details. Limit defaults to 50.
func (s *SQLiteStore) ListCampaigns(ctx context.Context, limit int) ([]*CampaignSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT campaign_id, type, status, total_recipients, successful, failed,
		       actual_cost, start_time, end_time
		FROM campaigns
		ORDER BY start_time DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying campaigns: %w", err)
	}
	defer rows.Close()

	var summaries []*CampaignSummary
	for rows.Next() {
		var (
			sum     CampaignSummary
			start   string
			end     sql.NullString
		)
		err := rows.Scan(
			&sum.CampaignID,
			&sum.Type,
			&sum.Status,
			&sum.TotalRecipients,
			&sum.Successful,
			&sum.Failed,
			&sum.ActualCost,
			&start,
			&end,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning campaign summary: %w", err)
		}
		if sum.StartTime, err = parseTime(start); err != nil {
			return nil, fmt.Errorf("parsing start time: %w", err)
		}
		if end.Valid {
			t, err := parseTime(end.String)
			if err != nil {
				return nil, fmt.Errorf("parsing end time: %w", err)
			}
			sum.EndTime = &t
		}
		sum.SuccessRate = SuccessRate(sum.Successful, sum.TotalRecipients)
		summaries = append(summaries, &sum)
	}
	return summaries, rows.Err()
}

const selectCampaign = `
	SELECT campaign_id, type, status, total_recipients, successful, failed,
	       message_template, details_json, estimated_cost, actual_cost, start_time, end_time
	FROM campaigns`

func scanCampaign(row rowScanner) (*Campaign, error) {
	var (
		c           Campaign
		detailsJSON string
		start       string
		end         sql.NullString
	)
	err := row.Scan(
		&c.CampaignID,
		&c.Type,
		&c.Status,
		&c.TotalRecipients,
		&c.Successful,
		&c.Failed,
		&c.MessageTemplate,
		&detailsJSON,
		&c.EstimatedCost,
		&c.ActualCost,
		&start,
		&end,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning campaign: %w", err)
	}

	if err := json.Unmarshal([]byte(detailsJSON), &c.Details); err != nil {
		return nil, fmt.Errorf("decoding details: %w", err)
	}
	if c.StartTime, err = parseTime(start); err != nil {
		return nil, fmt.Errorf("parsing start time: %w", err)
	}
	if end.Valid {
		t, err := parseTime(end.String)
		if err != nil {
			return nil, fmt.Errorf("parsing end time: %w", err)
		}
		c.EndTime = &t
	}

	c.Pending = c.TotalRecipients - c.Successful - c.Failed
	if c.Pending < 0 {
		c.Pending = 0
	}
	return &c, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
