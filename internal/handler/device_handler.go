// internal/handler/device_handler.go
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"siggen-service/internal/model"
	"siggen-service/internal/protocol"
	"siggen-service/internal/service"
	"siggen-service/internal/utils"
)

// DeviceHandler exposes the device session over HTTP
type DeviceHandler struct {
	session          *service.Session
	operationTimeout time.Duration
	logger           *utils.ServiceLogger
}

// NewDeviceHandler creates a new device handler
func NewDeviceHandler(session *service.Session, operationTimeout time.Duration, logger *zap.Logger) *DeviceHandler {
	if operationTimeout <= 0 {
		operationTimeout = 45 * time.Second
	}
	return &DeviceHandler{
		session:          session,
		operationTimeout: operationTimeout,
		logger:           utils.NewServiceLogger(logger, "device-handler"),
	}
}

// RegisterRoutes registers device-related routes
func (h *DeviceHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/ports", h.ListPorts)
	router.GET("/profile", h.GetProfile)

	port := router.Group("/port")
	{
		port.GET("", h.GetStatus)
		port.POST("/open", h.OpenPort)
		port.POST("/close", h.ClosePort)
		port.POST("/reconnect", h.Reconnect)
		port.POST("/write", h.WriteRaw)
	}

	channels := router.Group("/channels/:channel")
	{
		channels.POST("/frequency", h.valueHandler("frequency", h.session.SetFrequency))
		channels.POST("/amplitude", h.valueHandler("amplitude", h.session.SetAmplitude))
		channels.POST("/offset", h.valueHandler("offset", h.session.SetOffset))
		channels.POST("/duty-cycle", h.valueHandler("duty cycle", h.session.SetDutyCycle))
		channels.POST("/phase", h.valueHandler("phase", h.session.SetPhase))
		channels.POST("/attenuation", h.SetAttenuation)
		channels.POST("/output", h.SetOutput)
		channels.POST("/waveform", h.SetWaveform)
		channels.POST("/apply", h.Apply)
	}

	router.POST("/outputs/stop", h.StopOutputs)

	sequences := router.Group("/sequences")
	{
		sequences.GET("", h.ListSequences)
		sequences.GET("/:name", h.GetSequence)
		sequences.POST("/:name", h.RunSequence)
	}
}

// BaudRateRequest selects the baud rate for open and reconnect
type BaudRateRequest struct {
	BaudRate int `json:"baud_rate"`
}

// WriteRequest carries raw bytes for the active port
type WriteRequest struct {
	Data string `json:"data" binding:"required"`
}

// ValueRequest sets a numeric channel parameter
type ValueRequest struct {
	Value *float64 `json:"value" binding:"required"`
}

// AttenuationRequest sets the attenuation step of a channel
type AttenuationRequest struct {
	Step *int `json:"step" binding:"required"`
}

// OutputRequest switches a channel output
type OutputRequest struct {
	Enable *bool `json:"enable" binding:"required"`
}

// WaveformRequest selects a wave shape by name or device code
type WaveformRequest struct {
	Waveform string `json:"waveform" binding:"required"`
}

// ApplyRequest sets waveform, frequency and amplitude of a channel in one go
type ApplyRequest struct {
	Waveform  string   `json:"waveform" binding:"required"`
	Frequency *float64 `json:"frequency" binding:"required"`
	Amplitude *float64 `json:"amplitude" binding:"required"`
}

// ListPorts lists candidate ports
// @Summary List candidate ports
// @Description Ports the OS reports plus the simulated TEST port. With detailed=true USB identity is included.
// @Tags Ports
// @Produce json
// @Param detailed query bool false "Include USB details"
// @Success 200 {object} utils.APIResponse "Ports retrieved successfully"
// @Router /api/v1/ports [get]
func (h *DeviceHandler) ListPorts(c *gin.Context) {
	if detailed, _ := strconv.ParseBool(c.Query("detailed")); detailed {
		utils.SuccessResponse(c, http.StatusOK, "Ports retrieved successfully", h.session.DescribePorts(c.Request.Context()))
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Ports retrieved successfully", h.session.ListCandidates(c.Request.Context()))
}

// GetProfile returns the firmware profile in use
func (h *DeviceHandler) GetProfile(c *gin.Context) {
	profile := h.session.Profile()
	utils.SuccessResponse(c, http.StatusOK, "Profile retrieved successfully", gin.H{
		"name":       profile.Name,
		"channels":   profile.Channels(),
		"waveforms":  protocol.Waveforms,
		"terminator": profile.Terminator,
	})
}

// GetStatus returns the registry snapshot
// @Summary Port status
// @Tags Ports
// @Produce json
// @Success 200 {object} utils.APIResponse{data=model.RegistryStatus} "Status retrieved successfully"
// @Router /api/v1/port [get]
func (h *DeviceHandler) GetStatus(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Status retrieved successfully", h.session.Status())
}

// OpenPort opens the selected port
// @Summary Open selected port
// @Tags Ports
// @Accept json
// @Produce json
// @Param request body BaudRateRequest false "Baud rate"
// @Success 200 {object} utils.APIResponse "Port opened successfully"
// @Failure 409 {object} utils.APIResponse "Port already open"
// @Failure 502 {object} utils.APIResponse "OS open failed"
// @Router /api/v1/port/open [post]
func (h *DeviceHandler) OpenPort(c *gin.Context) {
	var req BaudRateRequest
	if !h.bindOptional(c, &req) {
		return
	}

	ctx, cancel := h.operationContext(c)
	defer cancel()

	port, err := h.session.Open(ctx, req.BaudRate)
	if err != nil {
		h.fail(c, "Failed to open port", err, gin.H{"port": port})
		return
	}

	h.logger.Info("Port opened", zap.String("port", port))
	utils.SuccessResponse(c, http.StatusOK, "Port opened successfully", gin.H{"port": port})
}

// ClosePort closes the active port
// @Summary Close active port
// @Tags Ports
// @Produce json
// @Success 200 {object} utils.APIResponse "Port closed successfully"
// @Failure 404 {object} utils.APIResponse "No port open"
// @Router /api/v1/port/close [post]
func (h *DeviceHandler) ClosePort(c *gin.Context) {
	port, err := h.session.Close()
	if err != nil {
		h.fail(c, "Failed to close port", err, gin.H{"port": port})
		return
	}

	h.logger.Info("Port closed", zap.String("port", port))
	utils.SuccessResponse(c, http.StatusOK, "Port closed successfully", gin.H{"port": port})
}

// Reconnect evicts every port and runs discovery
// @Summary Reconnect
// @Description Close all ports, probe candidates and install the device or the simulated port
// @Tags Ports
// @Accept json
// @Produce json
// @Param request body BaudRateRequest false "Operating baud rate"
// @Success 200 {object} utils.APIResponse{data=discovery.Result} "Connected"
// @Router /api/v1/port/reconnect [post]
func (h *DeviceHandler) Reconnect(c *gin.Context) {
	var req BaudRateRequest
	if !h.bindOptional(c, &req) {
		return
	}

	ctx, cancel := h.operationContext(c)
	defer cancel()

	result, err := h.session.Reconnect(ctx, req.BaudRate)
	if err != nil {
		h.fail(c, "Reconnect interrupted", err, result)
		return
	}

	h.logger.Info("Reconnected",
		zap.String("port", result.Port),
		zap.String("state", string(result.State)),
	)
	utils.SuccessResponse(c, http.StatusOK, "Connected to "+result.Port, result)
}

// WriteRaw writes data to the active port without framing
// @Summary Raw write
// @Tags Ports
// @Accept json
// @Produce json
// @Param request body WriteRequest true "Raw data"
// @Success 200 {object} utils.APIResponse "Data written"
// @Failure 409 {object} utils.APIResponse "No active port"
// @Router /api/v1/port/write [post]
func (h *DeviceHandler) WriteRaw(c *gin.Context) {
	var req WriteRequest
	if !h.bindJSON(c, &req) {
		return
	}

	ctx, cancel := h.operationContext(c)
	defer cancel()

	if err := h.session.Write(ctx, req.Data); err != nil {
		h.fail(c, "Write failed", err, nil)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Data written", gin.H{"bytes": len(req.Data)})
}

// valueHandler builds a handler for one numeric channel parameter
func (h *DeviceHandler) valueHandler(
	name string,
	set func(ctx context.Context, ch protocol.Channel, v float64) error,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		ch, ok := h.channel(c)
		if !ok {
			return
		}

		var req ValueRequest
		if !h.bindJSON(c, &req) {
			return
		}

		ctx, cancel := h.operationContext(c)
		defer cancel()

		if err := set(ctx, ch, *req.Value); err != nil {
			h.fail(c, "Failed to set "+name, err, nil)
			return
		}
		utils.SuccessResponse(c, http.StatusOK, "Channel "+name+" set", gin.H{
			"channel": ch,
			"value":   *req.Value,
		})
	}
}

// SetAttenuation sets the attenuation step
func (h *DeviceHandler) SetAttenuation(c *gin.Context) {
	ch, ok := h.channel(c)
	if !ok {
		return
	}

	var req AttenuationRequest
	if !h.bindJSON(c, &req) {
		return
	}

	ctx, cancel := h.operationContext(c)
	defer cancel()

	if err := h.session.SetAttenuation(ctx, ch, *req.Step); err != nil {
		h.fail(c, "Failed to set attenuation", err, nil)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Channel attenuation set", gin.H{"channel": ch, "step": *req.Step})
}

// SetOutput enables or disables a channel output
func (h *DeviceHandler) SetOutput(c *gin.Context) {
	ch, ok := h.channel(c)
	if !ok {
		return
	}

	var req OutputRequest
	if !h.bindJSON(c, &req) {
		return
	}

	ctx, cancel := h.operationContext(c)
	defer cancel()

	if err := h.session.EnableOutput(ctx, ch, *req.Enable); err != nil {
		h.fail(c, "Failed to switch output", err, nil)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Channel output switched", gin.H{"channel": ch, "enable": *req.Enable})
}

// SetWaveform selects the wave shape of a channel
func (h *DeviceHandler) SetWaveform(c *gin.Context) {
	ch, ok := h.channel(c)
	if !ok {
		return
	}

	var req WaveformRequest
	if !h.bindJSON(c, &req) {
		return
	}

	waveform, err := protocol.ParseWaveform(req.Waveform, h.session.Profile())
	if err != nil {
		h.fail(c, "Invalid waveform", err, nil)
		return
	}

	ctx, cancel := h.operationContext(c)
	defer cancel()

	if err := h.session.SetWaveform(ctx, ch, waveform); err != nil {
		h.fail(c, "Failed to set waveform", err, nil)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Channel waveform set", gin.H{"channel": ch, "waveform": waveform})
}

// Apply writes waveform, frequency and amplitude in that order. The output
// state is left as it is.
// @Summary Apply channel settings
// @Description Write waveform, frequency and amplitude with the step settle between them. Output enable is not changed.
// @Tags Channels
// @Accept json
// @Produce json
// @Param channel path int true "Channel (1 or 2)"
// @Param request body ApplyRequest true "Channel settings"
// @Success 200 {object} utils.APIResponse "Settings applied"
// @Failure 400 {object} utils.APIResponse "Invalid parameter"
// @Failure 502 {object} utils.APIResponse{data=service.SequenceError} "Write failed part way"
// @Router /api/v1/channels/{channel}/apply [post]
func (h *DeviceHandler) Apply(c *gin.Context) {
	ch, ok := h.channel(c)
	if !ok {
		return
	}

	var req ApplyRequest
	if !h.bindJSON(c, &req) {
		return
	}

	waveform, err := protocol.ParseWaveform(req.Waveform, h.session.Profile())
	if err != nil {
		h.fail(c, "Invalid waveform", err, nil)
		return
	}

	ctx, cancel := h.operationContext(c)
	defer cancel()

	if err := h.session.Apply(ctx, ch, waveform, *req.Frequency, *req.Amplitude); err != nil {
		h.fail(c, "Failed to apply settings", err, nil)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Settings applied", gin.H{
		"channel":   ch,
		"waveform":  waveform,
		"frequency": *req.Frequency,
		"amplitude": *req.Amplitude,
	})
}

// StopOutputs disables every channel output
func (h *DeviceHandler) StopOutputs(c *gin.Context) {
	ctx, cancel := h.operationContext(c)
	defer cancel()

	if err := h.session.Stop(ctx); err != nil {
		h.fail(c, "Failed to stop outputs", err, nil)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Outputs stopped", nil)
}

// ListSequences lists the configured command scripts
func (h *DeviceHandler) ListSequences(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Sequences retrieved successfully", h.session.Sequences())
}

// GetSequence returns one command script
func (h *DeviceHandler) GetSequence(c *gin.Context) {
	seq, ok := h.session.Sequence(c.Param("name"))
	if !ok {
		utils.ErrorResponse(c, http.StatusNotFound, "Sequence not found", nil)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Sequence retrieved successfully", seq)
}

// RunSequence runs a named command script on the active port
// @Summary Run sequence
// @Description Run a command script such as initial or stop-reset. Steps already written stay applied when a later step fails.
// @Tags Sequences
// @Produce json
// @Param name path string true "Sequence name"
// @Success 200 {object} utils.APIResponse "Sequence completed"
// @Failure 502 {object} utils.APIResponse{data=service.SequenceError} "Sequence stopped part way"
// @Router /api/v1/sequences/{name} [post]
func (h *DeviceHandler) RunSequence(c *gin.Context) {
	name := c.Param("name")

	ctx, cancel := h.operationContext(c)
	defer cancel()

	if err := h.session.RunSequence(ctx, name); err != nil {
		h.fail(c, "Sequence "+name+" failed", err, nil)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Sequence "+name+" completed", gin.H{"sequence": name})
}

// channel parses the :channel path parameter
func (h *DeviceHandler) channel(c *gin.Context) (protocol.Channel, bool) {
	n, err := strconv.Atoi(c.Param("channel"))
	if err != nil {
		utils.DeviceErrorResponse(c, "Invalid channel",
			model.InvalidParameter("channel %q is not a number", c.Param("channel")), nil)
		return 0, false
	}
	return protocol.Channel(n), true
}

// bindOptional binds a JSON body when one is present
func (h *DeviceHandler) bindOptional(c *gin.Context, obj interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	return h.bindJSON(c, obj)
}

// bindJSON binds the request body and answers 400 when it does not validate
func (h *DeviceHandler) bindJSON(c *gin.Context, obj interface{}) bool {
	err := c.ShouldBindJSON(obj)
	if err == nil {
		return true
	}

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		fields := make(map[string]string, len(validationErrs))
		for _, fe := range validationErrs {
			fields[strings.ToLower(fe.Field())] = fe.Tag()
		}
		utils.ValidationErrorResponse(c, fields)
		return false
	}

	utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
	return false
}

func (h *DeviceHandler) operationContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), h.operationTimeout)
}

// fail maps a session error onto the API response. A SequenceError replaces
// data so the caller sees which step stopped the script.
func (h *DeviceHandler) fail(c *gin.Context, message string, err error, data interface{}) {
	var seqErr *service.SequenceError
	if errors.As(err, &seqErr) {
		data = seqErr
	}

	h.logger.Warn(message,
		zap.Error(err),
		zap.String("code", model.ErrorCode(err)),
		zap.String("path", c.Request.URL.Path),
	)
	utils.DeviceErrorResponse(c, message, err, data)
}
