// Package google keeps the shared document in one row of a Google Sheets
// spreadsheet: A1 holds the collection JSON, B1 the write timestamp and C1
// the schema version. Sheets has no change feed, so Watch polls.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"gastos/internal/core"
	"gastos/internal/remote"
)

// MaxCellChars is the Sheets limit for a single cell.
const MaxCellChars = 50000

const defaultPollInterval = 15 * time.Second

var ErrDocumentTooLarge = fmt.Errorf("%w: document exceeds the sheets cell limit", remote.ErrRejected)

type Options struct {
	SpreadsheetID      string
	SheetName          string
	ServiceAccountJSON string
	ServiceAccountFile string
	PollInterval       time.Duration
}

type Store struct {
	svc           *gsheet.Service
	spreadsheetID string
	rng           string
	pollInterval  time.Duration
	now           func() time.Time
	logger        *slog.Logger
}

var _ remote.DocumentStore = (*Store)(nil)

// New creates a Sheets store authenticated with a service account.
func New(ctx context.Context, opts Options) (*Store, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	svc, err := newSheetsService(ctx, opts.ServiceAccountJSON, opts.ServiceAccountFile)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewWithService(svc, opts), nil
}

// NewWithService uses an existing Sheets service.
func NewWithService(svc *gsheet.Service, opts Options) *Store {
	sheet := opts.SheetName
	if sheet == "" {
		sheet = "Gastos"
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	return &Store{
		svc:           svc,
		spreadsheetID: opts.SpreadsheetID,
		rng:           documentRange(sheet),
		pollInterval:  poll,
		now:           time.Now,
		logger:        slog.Default().With("component", "remote", "backend", "sheets", "sheet", sheet),
	}
}

// newSheetsService builds the service from inline service account JSON or
// a credentials file.
func newSheetsService(ctx context.Context, serviceAccountJSON, serviceAccountFile string) (*gsheet.Service, error) {
	var credentialsJSON []byte
	switch {
	case strings.TrimSpace(serviceAccountJSON) != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case strings.TrimSpace(serviceAccountFile) != "":
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope),
		goption.WithHTTPClient(newHTTPClient()))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func newHTTPClient() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: 60 * time.Second}
}

func documentRange(sheet string) string {
	return fmt.Sprintf("'%s'!A1:C1", strings.ReplaceAll(sheet, "'", "''"))
}

func (s *Store) Ping(ctx context.Context) error {
	_, err := s.svc.Spreadsheets.Get(s.spreadsheetID).Fields("spreadsheetId").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("sheets ping: %w", mapErr(err))
	}
	return nil
}

func (s *Store) Get(ctx context.Context) (remote.Document, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.rng).Context(ctx).Do()
	if err != nil {
		return remote.Document{}, fmt.Errorf("read %s: %w", s.rng, mapErr(err))
	}
	return decodeRow(resp.Values)
}

func (s *Store) Put(ctx context.Context, c core.Collection) (remote.Document, error) {
	c = c.Clone()
	c.Normalize()
	data, err := json.Marshal(c)
	if err != nil {
		return remote.Document{}, fmt.Errorf("encode collection: %w", err)
	}
	if len(data) > MaxCellChars {
		return remote.Document{}, fmt.Errorf("%w: %d characters", ErrDocumentTooLarge, len(data))
	}

	doc := remote.Document{Collection: c, UpdatedAt: s.now().UTC(), Version: remote.SchemaVersion}
	vr := &gsheet.ValueRange{Values: [][]any{{
		string(data),
		doc.UpdatedAt.Format(time.RFC3339Nano),
		doc.Version,
	}}}
	_, err = s.svc.Spreadsheets.Values.Update(s.spreadsheetID, s.rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return remote.Document{}, fmt.Errorf("write %s: %w", s.rng, mapErr(err))
	}
	return doc, nil
}

// Watch polls the row and calls fn with the current document and after
// every change of its timestamp. A failing poll is reported once until a
// poll succeeds again.
func (s *Store) Watch(ctx context.Context, fn func(remote.Document, error)) (remote.Subscription, error) {
	first, err := s.Get(ctx)
	if err != nil && !errors.Is(err, remote.ErrDocumentNotFound) {
		return nil, err
	}

	found := err == nil

	watchCtx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		var last time.Time
		if found {
			last = first.UpdatedAt
			fn(first, nil)
		}
		failing := false

		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-watchCtx.Done():
				return
			case <-ticker.C:
			}

			doc, err := s.Get(watchCtx)
			if watchCtx.Err() != nil {
				return
			}
			switch {
			case errors.Is(err, remote.ErrDocumentNotFound):
				continue
			case err != nil:
				if !failing {
					failing = true
					s.logger.Warn("Polling sheet failed", "error", err)
					fn(remote.Document{}, err)
				}
				continue
			}
			failing = false
			if doc.UpdatedAt.Equal(last) {
				continue
			}
			last = doc.UpdatedAt
			fn(doc, nil)
		}
	}()

	return remote.SubscriptionFunc(func() error {
		cancel()
		wg.Wait()
		return nil
	}), nil
}

func decodeRow(values [][]any) (remote.Document, error) {
	if len(values) == 0 || len(values[0]) == 0 {
		return remote.Document{}, remote.ErrDocumentNotFound
	}
	row := values[0]
	data := cell(row, 0)
	if strings.TrimSpace(data) == "" {
		return remote.Document{}, remote.ErrDocumentNotFound
	}
	c, err := core.DecodeCollection([]byte(data))
	if err != nil {
		return remote.Document{}, fmt.Errorf("decode document: %w", err)
	}
	doc := remote.Document{Collection: c, Version: cell(row, 2)}
	if raw := cell(row, 1); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return remote.Document{}, fmt.Errorf("decode document timestamp %q: %w", raw, err)
		}
		doc.UpdatedAt = t
	}
	return doc, nil
}

func cell(row []any, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(row[i]))
}

// mapErr turns 401 and 403 responses into remote.ErrPermissionDenied.
func mapErr(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && (gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden) {
		return fmt.Errorf("%w: %w", remote.ErrPermissionDenied, err)
	}
	return err
}
