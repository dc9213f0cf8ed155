package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"go.uber.org/zap"

	"workhard-dashboard/chain"
	"workhard-dashboard/command"
	"workhard-dashboard/core/dao"
	"workhard-dashboard/dashboard"
	"workhard-dashboard/fork"
	"workhard-dashboard/models"
	"workhard-dashboard/security"
	"workhard-dashboard/services"
	"workhard-dashboard/storage/activity"
)

const (
	maxJSONBody  = 1 << 20
	maxImageBody = 8 << 20
)

// BaseHandler provides common functionality for all handlers
type BaseHandler struct {
	logger *zap.Logger
}

// NewBaseHandler creates a new base handler
func NewBaseHandler(logger *zap.Logger) *BaseHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BaseHandler{logger: logger}
}

// sendJSON sends a JSON response
func (h *BaseHandler) sendJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			h.logger.Warn("encode response", zap.Error(err))
		}
	}
}

// sendError sends an error response
func (h *BaseHandler) sendError(w http.ResponseWriter, statusCode int, kind, message string) {
	h.sendJSON(w, statusCode, models.NewErrorResponse(kind, message, statusCode))
}

// sendSuccess sends a success response
func (h *BaseHandler) sendSuccess(w http.ResponseWriter, data interface{}) {
	h.sendJSON(w, http.StatusOK, models.NewSuccessResponse(data))
}

// parseJSON decodes a bounded JSON body. An empty body leaves v untouched.
func (h *BaseHandler) parseJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	defer r.Body.Close()
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return invalid("invalid JSON body: %v", err)
}

// inputError is a request the caller has to fix.
type inputError struct{ msg string }

func (e inputError) Error() string { return e.msg }

func invalid(format string, args ...any) error {
	return inputError{msg: fmt.Sprintf(format, args...)}
}

// sendErr maps domain errors onto the error envelope. Notices keep their
// user-facing message; the action goes in the hint.
func (h *BaseHandler) sendErr(w http.ResponseWriter, err error) {
	if n, ok := command.AsNotice(err); ok {
		status := http.StatusUnprocessableEntity
		if n.Kind == command.KindRejected {
			status = http.StatusConflict
		}
		h.sendJSON(w, status, models.NewErrorResponseWithHint(string(n.Kind), n.Message, status, n.Action))
		return
	}

	var (
		in          inputError
		unsupported security.ErrUnsupportedImage
	)
	switch {
	case errors.As(err, &in):
		h.sendError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, dao.ErrShapeMismatch), errors.Is(err, dao.ErrBatchLength), errors.Is(err, dao.ErrEmptyBatch):
		h.sendError(w, http.StatusBadRequest, "invalid_call", err.Error())
	case errors.Is(err, fork.ErrUnknownStep), errors.Is(err, fork.ErrMissingProject),
		errors.Is(err, fork.ErrMissingMetadata), errors.As(err, &unsupported):
		h.sendError(w, http.StatusBadRequest, "invalid_fork_input", err.Error())
	case errors.Is(err, dashboard.ErrLockNotFound):
		h.sendError(w, http.StatusNotFound, "lock_not_found", err.Error())
	case errors.Is(err, activity.ErrEntryNotFound):
		h.sendError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		h.sendError(w, http.StatusGatewayTimeout, "upstream_timeout", "The node did not answer in time")
	default:
		h.logger.Error("request failed", zap.Error(err))
		h.sendError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func pathAccount(r *http.Request) (common.Address, error) {
	raw := r.PathValue("account")
	if !common.IsHexAddress(raw) {
		return common.Address{}, invalid("invalid account %q", raw)
	}
	return common.HexToAddress(raw), nil
}

func queryInt(r *http.Request, name string) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, invalid("%s must be an integer", name)
	}
	return v, nil
}

func parseID(name, raw string) (*big.Int, error) {
	v, ok := math.ParseBig256(strings.TrimSpace(raw))
	if !ok || raw == "" {
		return nil, invalid("%s must be a decimal or 0x integer", name)
	}
	return v, nil
}

// HealthHandler handles health check requests
type HealthHandler struct {
	*BaseHandler
	healthService *services.HealthService
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(healthService *services.HealthService, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		BaseHandler:   NewBaseHandler(logger),
		healthService: healthService,
	}
}

// HandleHealth handles health check requests
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.sendSuccess(w, h.healthService.GetHealthStatus())
}

// QRCodeHandler handles QR code generation requests
type QRCodeHandler struct {
	*BaseHandler
	qrService *services.QRCodeService
}

// NewQRCodeHandler creates a new QR code handler
func NewQRCodeHandler(qrService *services.QRCodeService, logger *zap.Logger) *QRCodeHandler {
	return &QRCodeHandler{
		BaseHandler: NewBaseHandler(logger),
		qrService:   qrService,
	}
}

// HandleGenerateQRCode renders a payment QR code for ?address=&amount=.
func (h *QRCodeHandler) HandleGenerateQRCode(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if address == "" {
		h.sendError(w, http.StatusBadRequest, "invalid_request", "Address parameter required")
		return
	}

	qrData, err := h.qrService.GenerateQRCode(address, r.URL.Query().Get("amount"))
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(qrData)
}

// DashboardHandler serves the read-only views.
type DashboardHandler struct {
	*BaseHandler
	svc *dashboard.Service
}

func NewDashboardHandler(svc *dashboard.Service, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{BaseHandler: NewBaseHandler(logger), svc: svc}
}

func (h *DashboardHandler) HandleNetwork(w http.ResponseWriter, r *http.Request) {
	h.sendSuccess(w, h.svc.Network())
}

// HandleBalance renders ?token= (VISION when omitted) for the account.
func (h *DashboardHandler) HandleBalance(w http.ResponseWriter, r *http.Request) {
	account, err := pathAccount(r)
	if err != nil {
		h.sendErr(w, err)
		return
	}
	var token common.Address
	if raw := r.URL.Query().Get("token"); raw != "" {
		if !common.IsHexAddress(raw) {
			h.sendErr(w, invalid("invalid token %q", raw))
			return
		}
		token = common.HexToAddress(raw)
	}
	card, err := h.svc.Balance(r.Context(), account, token)
	if err != nil {
		h.sendErr(w, err)
		return
	}
	h.sendSuccess(w, card)
}

func (h *DashboardHandler) HandleCreateLockForm(w http.ResponseWriter, r *http.Request) {
	account, err := pathAccount(r)
	if err != nil {
		h.sendErr(w, err)
		return
	}
	epochs, err := queryInt(r, "epochs")
	if err != nil {
		h.sendErr(w, err)
		return
	}
	form, err := h.svc.CreateLockForm(r.Context(), account, dashboard.CreateLockParams{
		Amount: r.URL.Query().Get("amount"),
		Epochs: epochs,
	})
	if err != nil {
		h.sendErr(w, err)
		return
	}
	h.sendSuccess(w, form)
}

func (h *DashboardHandler) HandleLocks(w http.ResponseWriter, r *http.Request) {
	account, err := pathAccount(r)
	if err != nil {
		h.sendErr(w, err)
		return
	}
	epochs, err := queryInt(r, "epochs")
	if err != nil {
		h.sendErr(w, err)
		return
	}
	cards, err := h.svc.Locks(r.Context(), account, dashboard.LockParams{
		Amount:     r.URL.Query().Get("amount"),
		Epochs:     epochs,
		DelegateTo: r.URL.Query().Get("delegate_to"),
	})
	if err != nil {
		h.sendErr(w, err)
		return
	}
	h.sendSuccess(w, cards)
}

// HandleProposal renders the proposal in the request body. The body carries
// the call, so this is a POST.
func (h *DashboardHandler) HandleProposal(w http.ResponseWriter, r *http.Request) {
	account, err := pathAccount(r)
	if err != nil {
		h.sendErr(w, err)
		return
	}
	var req dashboard.ProposalRequest
	if err := h.parseJSON(w, r, &req); err != nil {
		h.sendErr(w, err)
		return
	}
	tx, err := req.Decode()
	if err != nil {
		h.sendErr(w, err)
		return
	}
	card, err := h.svc.ProposalView(r.Context(), account, tx)
	if err != nil {
		h.sendErr(w, err)
		return
	}
	h.sendSuccess(w, card)
}

func (h *DashboardHandler) HandleJobs(w http.ResponseWriter, r *http.Request) {
	account, err := pathAccount(r)
	if err != nil {
		h.sendErr(w, err)
		return
	}
	board, err := h.svc.Jobs(r.Context(), account)
	if err != nil {
		h.sendErr(w, err)
		return
	}
	h.sendSuccess(w, board)
}

func (h *DashboardHandler) HandleProject(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 0 {
		h.sendErr(w, invalid("project id must be a non-negative integer"))
		return
	}
	p, err := h.svc.Project(r.Context(), id)
	if err != nil {
		h.sendErr(w, err)
		return
	}
	h.sendSuccess(w, p)
}

// HandleActivity lists journaled commands filtered by ?account=&action=&outcome=&limit=.
func (h *DashboardHandler) HandleActivity(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.sendErr(w, err)
		return
	}
	q := r.URL.Query()
	entries, err := h.svc.Activity(r.Context(), activity.Filter{
		Account: q.Get("account"),
		Action:  q.Get("action"),
		Outcome: q.Get("outcome"),
		Limit:   int(limit),
	})
	if err != nil {
		h.sendErr(w, err)
		return
	}
	h.sendSuccess(w, entries)
}

// HandleForkRoute resolves a wizard path such as /fork/upgrade/3.
func (h *DashboardHandler) HandleForkRoute(w http.ResponseWriter, r *http.Request) {
	route, err := fork.ParseRoute("/fork/" + r.PathValue("rest"))
	if err != nil {
		h.sendErr(w, err)
		return
	}
	h.sendSuccess(w, map[string]any{
		"step":       route.Step,
		"project_id": route.ProjectID,
		"path":       route.Path(),
	})
}

// CommandHandler submits transactions for the local wallet.
type CommandHandler struct {
	*BaseHandler
	svc *dashboard.Service
}

func NewCommandHandler(svc *dashboard.Service, logger *zap.Logger) *CommandHandler {
	return &CommandHandler{BaseHandler: NewBaseHandler(logger), svc: svc}
}

type lockRequest struct {
	LockID string `json:"lock_id"`
	Amount string `json:"amount,omitempty"`
	Epochs int64  `json:"epochs,omitempty"`
	To     string `json:"to,omitempty"`
}

type voteRequest struct {
	dashboard.ProposalRequest
	Agree bool `json:"agree"`
}

type upgradeRequest struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

type projectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageName   string `json:"image_name"`
	Image       []byte `json:"image"`
}

func (h *CommandHandler) done(w http.ResponseWriter, c *command.Completion, err error) {
	if err != nil {
		h.sendErr(w, err)
		return
	}
	h.sendSuccess(w, c)
}

func (h *CommandHandler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.ApproveLocker(r.Context())
	h.done(w, c, err)
}

func (h *CommandHandler) HandleCreateLock(w http.ResponseWriter, r *http.Request) {
	var req dashboard.CreateLockParams
	if err := h.parseJSON(w, r, &req); err != nil {
		h.sendErr(w, err)
		return
	}
	c, err := h.svc.CreateLock(r.Context(), req)
	h.done(w, c, err)
}

// lockCommand decodes a lock request and runs fn against its lock id.
func (h *CommandHandler) lockCommand(fn func(ctx context.Context, id *big.Int, req lockRequest) (*command.Completion, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req lockRequest
		if err := h.parseJSON(w, r, &req); err != nil {
			h.sendErr(w, err)
			return
		}
		id, err := parseID("lock_id", req.LockID)
		if err != nil {
			h.sendErr(w, err)
			return
		}
		c, err := fn(r.Context(), id, req)
		h.done(w, c, err)
	}
}

func (h *CommandHandler) HandleIncreaseAmount() http.HandlerFunc {
	return h.lockCommand(func(ctx context.Context, id *big.Int, req lockRequest) (*command.Completion, error) {
		return h.svc.IncreaseAmount(ctx, id, req.Amount)
	})
}

func (h *CommandHandler) HandleExtendLock() http.HandlerFunc {
	return h.lockCommand(func(ctx context.Context, id *big.Int, req lockRequest) (*command.Completion, error) {
		return h.svc.ExtendLock(ctx, id, req.Epochs)
	})
}

func (h *CommandHandler) HandleDelegate() http.HandlerFunc {
	return h.lockCommand(func(ctx context.Context, id *big.Int, req lockRequest) (*command.Completion, error) {
		return h.svc.Delegate(ctx, id, req.To)
	})
}

func (h *CommandHandler) HandleWithdraw() http.HandlerFunc {
	return h.lockCommand(func(ctx context.Context, id *big.Int, _ lockRequest) (*command.Completion, error) {
		return h.svc.Withdraw(ctx, id)
	})
}

func (h *CommandHandler) HandleVote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := h.parseJSON(w, r, &req); err != nil {
		h.sendErr(w, err)
		return
	}
	tx, err := req.Decode()
	if err != nil {
		h.sendErr(w, err)
		return
	}
	c, err := h.svc.Vote(r.Context(), tx, req.Agree)
	h.done(w, c, err)
}

func (h *CommandHandler) governance(fn func(ctx context.Context, tx dao.ProposedTx) (*command.Completion, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dashboard.ProposalRequest
		if err := h.parseJSON(w, r, &req); err != nil {
			h.sendErr(w, err)
			return
		}
		tx, err := req.Decode()
		if err != nil {
			h.sendErr(w, err)
			return
		}
		c, err := fn(r.Context(), tx)
		h.done(w, c, err)
	}
}

func (h *CommandHandler) HandleSchedule() http.HandlerFunc { return h.governance(h.svc.Schedule) }

func (h *CommandHandler) HandleExecute() http.HandlerFunc { return h.governance(h.svc.Execute) }

// HandleCreateProject accepts JSON (image as base64) or a multipart form with
// name, description and an image file.
func (h *CommandHandler) HandleCreateProject(w http.ResponseWriter, r *http.Request) {
	in, err := h.projectInput(w, r)
	if err != nil {
		h.sendErr(w, err)
		return
	}
	res, err := h.svc.CreateProject(r.Context(), in)
	if err != nil {
		h.sendErr(w, err)
		return
	}
	h.sendSuccess(w, res)
}

func (h *CommandHandler) projectInput(w http.ResponseWriter, r *http.Request) (fork.ProjectInput, error) {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		var req projectRequest
		if err := h.parseJSON(w, r, &req); err != nil {
			return fork.ProjectInput{}, err
		}
		return fork.ProjectInput{Name: req.Name, Description: req.Description, ImageName: req.ImageName, Image: req.Image}, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImageBody)
	if err := r.ParseMultipartForm(maxImageBody); err != nil {
		return fork.ProjectInput{}, invalid("failed to parse form: %v", err)
	}
	in := fork.ProjectInput{Name: r.FormValue("name"), Description: r.FormValue("description")}
	file, header, err := r.FormFile("image")
	if err != nil {
		return fork.ProjectInput{}, invalid("image file required")
	}
	defer file.Close()
	if in.Image, err = io.ReadAll(file); err != nil {
		return fork.ProjectInput{}, invalid("read image: %v", err)
	}
	in.ImageName = header.Filename
	return in, nil
}

func (h *CommandHandler) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("project id", r.PathValue("id"))
	if err != nil {
		h.sendErr(w, err)
		return
	}
	var req upgradeRequest
	if err := h.parseJSON(w, r, &req); err != nil {
		h.sendErr(w, err)
		return
	}
	res, err := h.svc.UpgradeToDAO(r.Context(), id, req.Name, req.Symbol)
	if err != nil {
		h.sendErr(w, err)
		return
	}
	h.sendSuccess(w, res)
}

func (h *CommandHandler) HandleLaunch(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("project id", r.PathValue("id"))
	if err != nil {
		h.sendErr(w, err)
		return
	}
	var params chain.LaunchParams
	if err := h.parseJSON(w, r, &params); err != nil {
		h.sendErr(w, err)
		return
	}
	res, err := h.svc.Launch(r.Context(), id, params)
	if err != nil {
		h.sendErr(w, err)
		return
	}
	h.sendSuccess(w, res)
}
