package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dmmcquay/katago-retro/internal/coach"
	"github.com/dmmcquay/katago-retro/internal/gametree"
	"github.com/dmmcquay/katago-retro/internal/katago"
	"github.com/dmmcquay/katago-retro/internal/logging"
	"github.com/dmmcquay/katago-retro/internal/retro"
	"github.com/dmmcquay/katago-retro/internal/store"
)

// Reviews is the part of *coach.Coach the tools drive.
type Reviews interface {
	StartReview(ctx context.Context, sgf string, color retro.Player) (*coach.Status, error)
	Status(id string) (*coach.Status, error)
	Attempt(ctx context.Context, id, move string) (*coach.Status, error)
	Navigate(ctx context.Context, id string, path retro.Path) (*coach.Status, error)
	NavigateMainline(ctx context.Context, id string, ply int) (*coach.Status, error)
	Skip(id string) (*coach.Status, error)
	ViewSolution(id string) (*coach.Status, error)
	JumpToNext(id string) (*coach.Status, error)
	Reset(id string) (*coach.Status, error)
	Flip(ctx context.Context, id string) (*coach.Status, error)
	Close(id string) error
	Len() int
}

// EngineMonitor reports on the supervised engine. *katago.Supervisor implements it.
type EngineMonitor interface {
	HealthCheck(ctx context.Context) error
	GetEngine() katago.EngineInterface
}

// ToolsHandler manages the review tools.
type ToolsHandler struct {
	reviews    Reviews
	engine     EngineMonitor
	store      *store.Store
	logger     logging.ContextLogger
	middleware *Middleware
}

// NewToolsHandler creates a new tools handler.
func NewToolsHandler(reviews Reviews, engine EngineMonitor, logger logging.ContextLogger) *ToolsHandler {
	return &ToolsHandler{
		reviews: reviews,
		engine:  engine,
		logger:  logger,
	}
}

// SetMiddleware sets the middleware for the tools handler.
func (h *ToolsHandler) SetMiddleware(middleware *Middleware) {
	h.middleware = middleware
}

// SetStore enables the reviewHistory tool.
func (h *ToolsHandler) SetStore(s *store.Store) {
	h.store = s
}

func reviewIDOption() mcp.ToolOption {
	return mcp.WithString("reviewId",
		mcp.Description("ID returned by startReview"),
		mcp.Required(),
	)
}

// RegisterTools registers all tools with the MCP server.
func (h *ToolsHandler) RegisterTools(s *server.MCPServer) {
	startReviewTool := mcp.NewTool("startReview",
		mcp.WithDescription("Analyse a game and start reviewing one player's mistakes. "+
			"Each mistake is shown from the position before it; play a better move to solve it."),
		mcp.WithString("sgf",
			mcp.Description("SGF content of the game to review"),
			mcp.Required(),
		),
		mcp.WithString("color",
			mcp.Description("Player whose mistakes to review: black or white"),
			mcp.Required(),
		),
	)
	startHandler := h.HandleStartReview
	if h.middleware != nil {
		startHandler = h.middleware.WrapToolWithRetry("startReview", startHandler, 2)
	}
	s.AddTool(startReviewTool, startHandler)

	h.addTool(s, mcp.NewTool("reviewStatus",
		mcp.WithDescription("Show the state of a review"),
		reviewIDOption(),
		mcp.WithBoolean("json",
			mcp.Description("Return the status as JSON"),
		),
	), h.HandleReviewStatus)

	h.addTool(s, mcp.NewTool("playMove",
		mcp.WithDescription("Play a move on the displayed position. From the position before the mistake it is judged as an answer."),
		reviewIDOption(),
		mcp.WithString("move",
			mcp.Description("Move to play (e.g., 'D4', 'Q16', 'pass')"),
			mcp.Required(),
		),
	), h.HandlePlayMove)

	h.addTool(s, mcp.NewTool("navigate",
		mcp.WithDescription("Display another position of the game tree"),
		reviewIDOption(),
		mcp.WithString("path",
			mcp.Description("Tree path of the node, as shown in reviewStatus"),
		),
		mcp.WithNumber("moveNumber",
			mcp.Description("Number of game moves to show (0 is the empty board)"),
		),
	), h.HandleNavigate)

	h.addTool(s, mcp.NewTool("skip",
		mcp.WithDescription("Give up on the current mistake and move to the next one"),
		reviewIDOption(),
	), h.commandHandler("skip", Reviews.Skip))

	h.addTool(s, mcp.NewTool("viewSolution",
		mcp.WithDescription("Show the engine's move for the current mistake"),
		reviewIDOption(),
	), h.commandHandler("viewSolution", Reviews.ViewSolution))

	h.addTool(s, mcp.NewTool("jumpToNext",
		mcp.WithDescription("Move on to the next mistake, or back to the current one after browsing"),
		reviewIDOption(),
	), h.commandHandler("jumpToNext", Reviews.JumpToNext))

	h.addTool(s, mcp.NewTool("resetReview",
		mcp.WithDescription("Start the review over from the first mistake"),
		reviewIDOption(),
	), h.commandHandler("resetReview", Reviews.Reset))

	h.addTool(s, mcp.NewTool("flipReview",
		mcp.WithDescription("Review the other player's mistakes in the same game"),
		reviewIDOption(),
	), h.HandleFlipReview)

	h.addTool(s, mcp.NewTool("closeReview",
		mcp.WithDescription("Close a review"),
		reviewIDOption(),
	), h.HandleCloseReview)

	h.addTool(s, mcp.NewTool("reviewHistory",
		mcp.WithDescription("List past reviews and how their mistakes were resolved"),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of reviews to list (default: 10)"),
		),
	), h.HandleReviewHistory)

	h.addTool(s, mcp.NewTool("getEngineStatus",
		mcp.WithDescription("Get the status of the KataGo engine and the review service"),
	), h.HandleGetEngineStatus)
}

func (h *ToolsHandler) addTool(s *server.MCPServer, tool mcp.Tool, handler ToolHandler) {
	if h.middleware != nil {
		handler = h.middleware.WrapTool(tool.Name, handler)
	}
	s.AddTool(tool, server.ToolHandlerFunc(handler))
}

// requestLogger tags ctx with fresh correlation and request IDs.
func (h *ToolsHandler) requestLogger(ctx context.Context, tool string) (context.Context, logging.ContextLogger) {
	ctx = logging.ContextWithCorrelationID(ctx, logging.GenerateCorrelationID())
	ctx = logging.ContextWithRequestID(ctx, logging.GenerateRequestID())
	return ctx, h.logger.WithContext(ctx).WithField("tool", tool)
}

// HandleStartReview handles the startReview tool.
func (h *ToolsHandler) HandleStartReview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, logger := h.requestLogger(ctx, "startReview")

	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	sgf, err := requireString(args, "sgf")
	if err != nil {
		return nil, err
	}
	colorArg, err := requireString(args, "color")
	if err != nil {
		return nil, err
	}
	color, err := retro.ParsePlayer(colorArg)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	logger.Info("Starting review", "color", color)
	st, err := h.reviews.StartReview(ctx, sgf, color)
	if err != nil {
		logger.Warn("Failed to start review", "error", err)
		if engineUnavailable(err) {
			return nil, fmt.Errorf("failed to start review: %w", err)
		}
		// Bad SGF, illegal moves and failed analyses are the caller's to fix.
		return mcp.NewToolResultError(fmt.Sprintf("failed to start review: %v", err)), nil
	}
	logger.WithContext(logging.ContextWithReviewID(ctx, st.ReviewID)).Info("Review started",
		"faults", st.Completion.Total)
	return statusResult(st, nil)
}

// HandleReviewStatus handles the reviewStatus tool.
func (h *ToolsHandler) HandleReviewStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	id, err := requireString(args, "reviewId")
	if err != nil {
		return nil, err
	}

	st, err := h.reviews.Status(id)
	if err != nil {
		return statusResult(nil, err)
	}

	if asJSON, _ := args["json"].(bool); asJSON {
		data, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to format status: %w", err)
		}
		return mcp.NewToolResultText(string(data)), nil
	}
	return statusResult(st, nil)
}

// HandlePlayMove handles the playMove tool.
func (h *ToolsHandler) HandlePlayMove(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, logger := h.requestLogger(ctx, "playMove")

	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	id, err := requireString(args, "reviewId")
	if err != nil {
		return nil, err
	}
	move, err := requireString(args, "move")
	if err != nil {
		return nil, err
	}

	ctx = logging.ContextWithReviewID(ctx, id)
	logger.WithContext(ctx).Debug("Playing move", "move", move)
	return statusResult(h.reviews.Attempt(ctx, id, move))
}

// HandleNavigate handles the navigate tool.
func (h *ToolsHandler) HandleNavigate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	id, err := requireString(args, "reviewId")
	if err != nil {
		return nil, err
	}
	ctx = logging.ContextWithReviewID(ctx, id)

	if path, ok := args["path"].(string); ok {
		return statusResult(h.reviews.Navigate(ctx, id, retro.Path(path)))
	}
	if n, ok := numberArg(args, "moveNumber"); ok {
		return statusResult(h.reviews.NavigateMainline(ctx, id, int(n)))
	}
	return nil, fmt.Errorf("must provide either 'path' or 'moveNumber' parameter")
}

// commandHandler adapts a session command taking only the review ID.
func (h *ToolsHandler) commandHandler(tool string, fn func(Reviews, string) (*coach.Status, error)) ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := arguments(request)
		if err != nil {
			return nil, err
		}
		id, err := requireString(args, "reviewId")
		if err != nil {
			return nil, err
		}
		h.logger.WithContext(logging.ContextWithReviewID(ctx, id)).Debug("Review command", "tool", tool)
		return statusResult(fn(h.reviews, id))
	}
}

// HandleFlipReview handles the flipReview tool.
func (h *ToolsHandler) HandleFlipReview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	id, err := requireString(args, "reviewId")
	if err != nil {
		return nil, err
	}
	return statusResult(h.reviews.Flip(logging.ContextWithReviewID(ctx, id), id))
}

// HandleCloseReview handles the closeReview tool.
func (h *ToolsHandler) HandleCloseReview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	id, err := requireString(args, "reviewId")
	if err != nil {
		return nil, err
	}
	if err := h.reviews.Close(id); err != nil {
		return statusResult(nil, err)
	}
	return mcp.NewToolResultText(fmt.Sprintf("Review %s closed.", id)), nil
}

// HandleReviewHistory handles the reviewHistory tool.
func (h *ToolsHandler) HandleReviewHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if h.store == nil {
		return mcp.NewToolResultError("review history is disabled"), nil
	}

	limit := 10
	if args, ok := request.Params.Arguments.(map[string]interface{}); ok {
		if n, ok := numberArg(args, "limit"); ok && n > 0 {
			limit = int(n)
		}
	}

	reviews, err := h.store.ListReviews(ctx, limit)
	if err != nil {
		return nil, err
	}
	sum, err := h.store.Summarize(ctx)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("# Review History\n\n")
	sb.WriteString(fmt.Sprintf("- Reviews: %d\n", sum.Reviews))
	sb.WriteString(fmt.Sprintf("- Mistakes found: %d\n", sum.Faults))
	if len(sum.Resolutions) > 0 {
		sb.WriteString(fmt.Sprintf("- Resolved: %s\n", formatCounts(sum.Resolutions)))
	}
	if len(sum.Verdicts) > 0 {
		sb.WriteString(fmt.Sprintf("- Attempts: %s\n", formatCounts(sum.Verdicts)))
	}

	if len(reviews) > 0 {
		sb.WriteString("\n## Recent\n")
		for _, r := range reviews {
			state := "open"
			if !r.ClosedAt.IsZero() {
				state = "closed"
			}
			sb.WriteString(fmt.Sprintf("- %s %s: %s vs %s, %s, %d mistakes (%s)\n",
				r.StartedAt.Format("2006-01-02 15:04"), r.ID, orUnknown(r.BlackPlayer), orUnknown(r.WhitePlayer),
				r.Color, r.Faults, state))
		}
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleGetEngineStatus handles the getEngineStatus tool.
func (h *ToolsHandler) HandleGetEngineStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, logger := h.requestLogger(ctx, "getEngineStatus")

	var sb strings.Builder
	sb.WriteString("KataGo engine status: ")
	if err := h.engine.HealthCheck(ctx); err != nil {
		sb.WriteString(fmt.Sprintf("unavailable (%v)\n", err))
	} else {
		sb.WriteString("running\n")
	}
	if v, ok := h.engine.GetEngine().(interface{ Version() string }); ok && v.Version() != "" {
		sb.WriteString(fmt.Sprintf("KataGo version: %s\n", v.Version()))
	}
	sb.WriteString(fmt.Sprintf("Open reviews: %d\n", h.reviews.Len()))

	if h.middleware != nil {
		rl := h.middleware.RateLimitStatus()
		sb.WriteString(fmt.Sprintf("\nRate limiting: %v\n", rl.Enabled))
		if rl.Enabled {
			sb.WriteString(fmt.Sprintf("  Requests/min: %d\n", rl.RequestsPerMin))
			sb.WriteString(fmt.Sprintf("  Burst size: %d\n", rl.BurstSize))
			sb.WriteString(fmt.Sprintf("  Active clients: %d\n", rl.ActiveClients))
		}
	}

	logger.Debug("Engine status checked")
	return mcp.NewToolResultText(sb.String()), nil
}

// statusResult renders st, turning errors the player can act on into tool
// errors rather than protocol errors.
func statusResult(st *coach.Status, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		if rejected(err) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return nil, err
	}
	return mcp.NewToolResultText(st.Text()), nil
}

func rejected(err error) bool {
	for _, target := range []error{
		retro.ErrInvalidTransition,
		retro.ErrSessionClosed,
		retro.ErrNoSession,
		retro.ErrIncompleteAnalysis,
		gametree.ErrNoNode,
		gametree.ErrOccupied,
		gametree.ErrSuicide,
		gametree.ErrKo,
		coach.ErrTooManyReviews,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func arguments(request mcp.CallToolRequest) (map[string]interface{}, error) {
	if request.Params.Arguments == nil {
		return nil, fmt.Errorf("missing arguments")
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid arguments format")
	}
	return args, nil
}

func requireString(args map[string]interface{}, key string) (string, error) {
	val, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required parameter '%s'", key)
	}
	s, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string", key)
	}
	return s, nil
}

func numberArg(args map[string]interface{}, key string) (float64, bool) {
	switch v := args[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

func formatCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s %d", k, counts[k])
	}
	return strings.Join(parts, ", ")
}

func orUnknown(name string) string {
	if name == "" {
		return "?"
	}
	return name
}
