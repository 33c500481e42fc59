// Package mcp exposes the medication tracker as Model Context Protocol tools
// so an assistant can record doses and ask about adherence.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	apperrors "github.com/gmsas95/meditrack/internal/errors"
	"github.com/gmsas95/meditrack/internal/health"
	"github.com/gmsas95/meditrack/internal/interactions"
	"github.com/gmsas95/meditrack/internal/tracker"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

const serverName = "meditrack"

// Server is the MCP server for the tracker.
type Server struct {
	mcpServer *server.MCPServer
	tracker   *tracker.Tracker
	logger    *zap.Logger
}

// NewServer creates an MCP server backed by the given tracker.
func NewServer(tr *tracker.Tracker, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		tracker: tr,
		logger:  logger,
	}

	s.mcpServer = server.NewMCPServer(
		serverName,
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s.registerTools()
	return s
}

// MCPServer returns the underlying MCP server for serving.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio blocks serving MCP over stdin and stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool("add_medication",
			mcp.WithDescription("Add a medication with its daily dose times"),
			mcp.WithString("name", mcp.Required(), mcp.Description("Medication name, e.g. Metformin")),
			mcp.WithString("dosage", mcp.Required(), mcp.Description("Dosage, e.g. 500mg or 1 tablet")),
			mcp.WithString("times", mcp.Required(), mcp.Description("Comma-separated HH:MM dose times, e.g. 08:00,20:00")),
			mcp.WithString("start_date", mcp.Description("First day in YYYY-MM-DD (default: today)")),
			mcp.WithString("end_date", mcp.Description("Last day in YYYY-MM-DD (default: open-ended)")),
			mcp.WithString("notes", mcp.Description("Optional notes, e.g. take with food")),
			mcp.WithBoolean("reminder_enabled", mcp.Description("Deliver reminders for this medication (default: true)")),
		),
		s.handleAddMedication,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("delete_medication",
			mcp.WithDescription("Remove a medication. Its dose history is kept but no longer counted"),
			mcp.WithString("id", mcp.Required(), mcp.Description("Medication ID")),
		),
		s.handleDeleteMedication,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("mark_taken",
			mcp.WithDescription("Record that one scheduled dose was taken now"),
			mcp.WithString("medication_id", mcp.Required(), mcp.Description("Medication ID")),
			mcp.WithString("scheduled_time", mcp.Required(), mcp.Description("The dose slot in HH:MM, must be one of the medication's times")),
		),
		s.handleMarkTaken,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("list_medications",
			mcp.WithDescription("List all medications"),
		),
		s.handleListMedications,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("todays_reminders",
			mcp.WithDescription("List today's untaken doses, earliest first, with overdue flags"),
		),
		s.handleTodaysReminders,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("adherence_rate",
			mcp.WithDescription("Percentage of scheduled doses taken over a rolling window ending today"),
			mcp.WithNumber("window_days", mcp.Description("Window length in days (default: 7)")),
		),
		s.handleAdherenceRate,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("streak",
			mcp.WithDescription("Number of consecutive fully completed days ending today"),
		),
		s.handleStreak,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("dose_history",
			mcp.WithDescription("Scheduled and taken dose counts per day (oldest first), period totals and a per-medication breakdown"),
			mcp.WithNumber("days", mcp.Description("Number of days, 1-366 (default: 7)")),
		),
		s.handleHistory,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("check_interactions",
			mcp.WithDescription("Flag known drug-drug and drug-substance interactions"),
			mcp.WithString("scope", mcp.Description("active (today's medications, default) or all")),
		),
		s.handleCheckInteractions,
	)
}

// toolError turns a tracker error into a tool error result. Validation and
// not-found errors are the caller's to fix; anything else is logged.
func (s *Server) toolError(action string, err error) *mcp.CallToolResult {
	if !apperrors.IsValidation(err) && !apperrors.IsNotFound(err) {
		s.logger.Error("MCP tool failed", zap.String("action", action), zap.Error(err))
	}
	return mcp.NewToolResultError(fmt.Sprintf("failed to %s: %v", action, err))
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(output)), nil
}

func splitTimes(s string) []string {
	var times []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			times = append(times, t)
		}
	}
	return times
}

func (s *Server) handleAddMedication(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	draft := health.Draft{
		Name:            req.GetString("name", ""),
		Dosage:          req.GetString("dosage", ""),
		Times:           splitTimes(req.GetString("times", "")),
		Notes:           req.GetString("notes", ""),
		ReminderEnabled: req.GetBool("reminder_enabled", true),
		StartDate:       health.DateOf(s.tracker.Now()),
	}

	if v := req.GetString("start_date", ""); v != "" {
		d, err := health.ParseDate(v)
		if err != nil {
			return s.toolError("add medication", err), nil
		}
		draft.StartDate = d
	}
	if v := req.GetString("end_date", ""); v != "" {
		d, err := health.ParseDate(v)
		if err != nil {
			return s.toolError("add medication", err), nil
		}
		draft.EndDate = &d
	}

	med, err := s.tracker.AddMedication(ctx, draft)
	if err != nil {
		return s.toolError("add medication", err), nil
	}
	return jsonResult(med)
}

func (s *Server) handleDeleteMedication(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("id is required"), nil
	}

	if err := s.tracker.DeleteMedication(ctx, id); err != nil {
		return s.toolError("delete medication", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Medication %s deleted.", id)), nil
}

func (s *Server) handleMarkTaken(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("medication_id", "")
	slot := req.GetString("scheduled_time", "")
	if id == "" || slot == "" {
		return mcp.NewToolResultError("medication_id and scheduled_time are required"), nil
	}

	event, err := s.tracker.MarkTaken(ctx, id, slot)
	if err != nil {
		return s.toolError("mark dose taken", err), nil
	}
	return jsonResult(event)
}

func (s *Server) handleListMedications(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	meds := s.tracker.ListMedications()
	if len(meds) == 0 {
		return mcp.NewToolResultText("No medications found."), nil
	}
	return jsonResult(meds)
}

func (s *Server) handleTodaysReminders(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	reminders := s.tracker.TodaysReminders(s.tracker.Now())
	if len(reminders) == 0 {
		return mcp.NewToolResultText("All doses for today are taken."), nil
	}
	return jsonResult(reminders)
}

func (s *Server) handleAdherenceRate(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	window, err := rangeArg(req, "window_days", health.DefaultWindowDays)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	rate := s.tracker.AdherenceRateWindow(s.tracker.Now(), window)
	return mcp.NewToolResultText(fmt.Sprintf("Adherence over the last %d day(s): %d%%", window, rate)), nil
}

func (s *Server) handleStreak(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(fmt.Sprintf("Current streak: %d day(s)", s.tracker.Streak())), nil
}

func (s *Server) handleHistory(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	days, err := rangeArg(req, "days", health.DefaultWindowDays)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(s.tracker.Progress(s.tracker.Now(), days))
}

// rangeArg reads a day count, range-checking the float before converting it.
func rangeArg(req mcp.CallToolRequest, name string, def int) (int, error) {
	raw := req.GetFloat(name, float64(def))
	if math.IsNaN(raw) || raw < 1 || raw > health.MaxRangeDays {
		return 0, fmt.Errorf("%s must be between 1 and %d", name, health.MaxRangeDays)
	}
	return int(raw), nil
}

func (s *Server) handleCheckInteractions(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var records []interactions.Record
	switch scope := req.GetString("scope", "active"); scope {
	case "active":
		records = s.tracker.ActiveInteractions(s.tracker.Now())
	case "all":
		records = s.tracker.Interactions(s.tracker.ListMedications())
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown scope %q, use active or all", scope)), nil
	}

	if len(records) == 0 {
		return mcp.NewToolResultText("No known interactions."), nil
	}
	return jsonResult(records)
}
