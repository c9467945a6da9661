package google

import (
	"context"
	"fmt"
	"os"

	"diagdesk/internal/logging"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsService mirrors dashboard tables into one spreadsheet, one tab per table.
type SheetsService struct {
	service       *sheets.Service
	spreadsheetID string
	logger        *zerolog.Logger
}

// NewSheetsService authenticates with a service-account credentials file.
func NewSheetsService(ctx context.Context, credentialsFile, spreadsheetID string, logger *zerolog.Logger) (*SheetsService, error) {
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	return NewSheetsServiceWithOptions(ctx, spreadsheetID, logger, option.WithHTTPClient(config.Client(ctx)))
}

// NewSheetsServiceWithOptions builds the service from explicit client options.
func NewSheetsServiceWithOptions(ctx context.Context, spreadsheetID string, logger *zerolog.Logger, opts ...option.ClientOption) (*SheetsService, error) {
	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}
	return &SheetsService{
		service:       srv,
		spreadsheetID: spreadsheetID,
		logger:        logging.Component(logger, "sheets"),
	}, nil
}

// TestConnection reads the spreadsheet metadata.
func (s *SheetsService) TestConnection(ctx context.Context) error {
	if _, err := s.service.Spreadsheets.Get(s.spreadsheetID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// ReplaceSheet clears sheetName and writes rows from A1, creating the tab if needed.
func (s *SheetsService) ReplaceSheet(ctx context.Context, sheetName string, rows [][]interface{}) error {
	if err := s.ensureSheet(ctx, sheetName); err != nil {
		return err
	}

	if _, err := s.service.Spreadsheets.Values.Clear(s.spreadsheetID, sheetName, &sheets.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", sheetName, err)
	}

	if len(rows) == 0 {
		return nil
	}

	resp, err := s.service.Spreadsheets.Values.Update(s.spreadsheetID, sheetName+"!A1", &sheets.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", sheetName, err)
	}

	s.logger.Debug().Str("sheet", sheetName).Int64("cells", resp.UpdatedCells).Msg("sheet replaced")
	return nil
}

func (s *SheetsService) ensureSheet(ctx context.Context, sheetName string) error {
	spreadsheet, err := s.service.Spreadsheets.Get(s.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get spreadsheet: %w", err)
	}
	for _, sh := range spreadsheet.Sheets {
		if sh.Properties != nil && sh.Properties.Title == sheetName {
			return nil
		}
	}

	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: sheetName}},
		}},
	}
	if _, err := s.service.Spreadsheets.BatchUpdate(s.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %s: %w", sheetName, err)
	}
	s.logger.Info().Str("sheet", sheetName).Msg("sheet created")
	return nil
}
