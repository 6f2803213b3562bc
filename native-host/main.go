package main

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/Hussein-Mazeh/Vigil/analyzer"
	"github.com/Hussein-Mazeh/Vigil/internal/config"
	"github.com/Hussein-Mazeh/Vigil/internal/inspect"
	"github.com/Hussein-Mazeh/Vigil/internal/logging"
	"github.com/Hussein-Mazeh/Vigil/internal/service"
	"github.com/Hussein-Mazeh/Vigil/native-host/domaincheck"
)

const (
	version      = "0.1.0"
	bufferSize   = 1 << 16
	maxFrameSize = 1 << 20
)

// host owns the scan service for the lifetime of the messaging session.
type host struct {
	svc    *service.Service
	logger logrus.FieldLogger
}

// main runs the native messaging host event loop.
//
// Behavior:
//  1. Loads configuration (VIGIL_CONFIG or the default path) and logs to stderr or a file.
//  2. Opens the scan service; SIGINT/SIGTERM close it and exit, stdin EOF returns normally.
//  3. Loops reading requests, dispatching them via handleRequest, and writing responses.
func main() {
	cfg, err := config.Load(os.Getenv("VIGIL_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "vigil-host: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "vigil-host: %v\n", err)
		os.Exit(1)
	}

	svc, err := service.NewFromConfig(cfg, logger)
	if err != nil {
		logger.WithError(err).Error("start scan service")
		logCloser.Close()
		os.Exit(1)
	}

	var once sync.Once
	shutdown := func() {
		once.Do(func() {
			svc.Close()
			logCloser.Close()
		})
	}
	defer shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	done := make(chan struct{})
	defer close(done)
	go func() {
		if waitForSignal(sigCh, done) {
			cancel()
			shutdown()
			os.Exit(0)
		}
	}()

	h := &host{svc: svc, logger: logger}
	reader := bufio.NewReaderSize(os.Stdin, bufferSize)
	writer := bufio.NewWriterSize(os.Stdout, bufferSize)
	if err := h.serve(ctx, reader, writer); err != nil {
		logger.WithError(err).Error("messaging loop stopped")
	}
}

// waitForSignal blocks until a signal arrives (true) or done is closed (false).
func waitForSignal(sigCh <-chan os.Signal, done <-chan struct{}) bool {
	select {
	case <-sigCh:
		return true
	case <-done:
		return false
	}
}

// serve handles frames until the browser closes stdin.
func (h *host) serve(ctx context.Context, r *bufio.Reader, w *bufio.Writer) error {
	for {
		payload, err := readFrame(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read frame: %w", err)
		}

		resp := h.handleRequest(ctx, payload)

		if err := writeFrame(w, resp); err != nil {
			return fmt.Errorf("write frame: %w", err)
		}
	}
}

type envelope struct {
	Command string `json:"command"`
}

type scanRequest struct {
	TabID           *int64 `json:"tabId"`
	URL             string `json:"url"`
	ScriptCount     *int   `json:"scriptCount"`
	TrackerEstimate *int   `json:"trackerEstimate"`
}

// page converts the request into an inspection target. Counts are only treated as reported
// when the extension sent at least one of them.
func (r scanRequest) page() inspect.Page {
	p := inspect.Page{URL: r.URL}
	if r.TabID != nil {
		p.TabID = *r.TabID
	}
	if r.ScriptCount != nil || r.TrackerEstimate != nil {
		stats := inspect.ScriptStats{}
		if r.ScriptCount != nil {
			stats.ScriptCount = *r.ScriptCount
		}
		if r.TrackerEstimate != nil {
			stats.TrackerEstimate = *r.TrackerEstimate
		}
		p.Reported = &stats
	}
	return p
}

type urlRequest struct {
	URL string `json:"url"`
}

type response struct {
	OK      bool   `json:"ok"`
	Result  any    `json:"result,omitempty"`
	Data    any    `json:"data,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// noResult encodes as "result": null.
var noResult = (*analyzer.ScanRecord)(nil)

// handleRequest routes an inbound payload to the appropriate handler according to the envelope command.
//
// Args:
//
//	ctx: cancelled when the host is shutting down.
//	payload: JSON-encoded request received from the browser.
//
// Returns:
//
//	response: structured result indicating success and data or failure details.
//
// Behavior:
//  1. Parses the envelope to determine the command, returning BAD_JSON on failure.
//  2. Unmarshals into the typed request and delegates to command-specific handlers.
//  3. Emits UNSUPPORTED responses for unknown commands without touching any tab state.
func (h *host) handleRequest(ctx context.Context, payload []byte) response {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return response{OK: false, Code: "BAD_JSON", Message: "invalid json"}
	}

	switch env.Command {
	case "ping":
		return response{OK: true}
	case "health":
		return response{OK: true, Data: map[string]string{"version": version}}
	case "rescan":
		var req scanRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return response{OK: false, Result: noResult, Code: "BAD_JSON", Message: "invalid json"}
		}
		return h.handleRescan(ctx, req)
	case "navigate":
		var req scanRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return response{OK: false, Code: "BAD_JSON", Message: "invalid json"}
		}
		return h.handleNavigate(req)
	case "complete":
		var req scanRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return response{OK: false, Result: noResult, Code: "BAD_JSON", Message: "invalid json"}
		}
		return h.handleComplete(ctx, req)
	case "tabRemoved":
		var req scanRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return response{OK: false, Code: "BAD_JSON", Message: "invalid json"}
		}
		return h.handleTabRemoved(req)
	case "lastScan":
		var req urlRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return response{OK: false, Result: noResult, Code: "BAD_JSON", Message: "invalid json"}
		}
		return h.handleLastScan(req)
	case "lookalike":
		var req urlRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return response{OK: false, Code: "BAD_JSON", Message: "invalid json"}
		}
		return h.handleLookalike(ctx, req)
	default:
		return response{OK: false, Code: "UNSUPPORTED", Message: "unsupported command"}
	}
}

// handleRescan runs an on-demand scan for the tab.
func (h *host) handleRescan(ctx context.Context, req scanRequest) response {
	if req.TabID == nil || strings.TrimSpace(req.URL) == "" {
		return response{OK: false, Result: noResult, Code: "BAD_REQUEST", Message: "tabId and url required"}
	}
	return h.scan(ctx, req)
}

func (h *host) handleNavigate(req scanRequest) response {
	if req.TabID == nil || strings.TrimSpace(req.URL) == "" {
		return response{OK: false, Code: "BAD_REQUEST", Message: "tabId and url required"}
	}
	h.svc.RecordVisit(*req.TabID, req.URL)
	return response{OK: true}
}

// handleComplete scans a finished page load unless it is a browser-internal page.
func (h *host) handleComplete(ctx context.Context, req scanRequest) response {
	if req.TabID == nil || strings.TrimSpace(req.URL) == "" {
		return response{OK: false, Result: noResult, Code: "BAD_REQUEST", Message: "tabId and url required"}
	}
	if !service.ShouldAutoScan(req.URL) {
		return response{OK: false, Result: noResult, Code: "SKIPPED", Message: "page not eligible for automatic scan"}
	}
	return h.scan(ctx, req)
}

func (h *host) handleTabRemoved(req scanRequest) response {
	if req.TabID == nil {
		return response{OK: false, Code: "BAD_REQUEST", Message: "tabId required"}
	}
	if err := h.svc.CloseTab(*req.TabID); err != nil {
		h.logger.WithField("tab", *req.TabID).WithError(err).Error("close tab")
		return response{OK: false, Code: "DB_ERROR", Message: "failed to discard tab record"}
	}
	return response{OK: true}
}

func (h *host) handleLastScan(req urlRequest) response {
	rec, err := h.svc.LastScan(req.URL)
	switch {
	case err == nil:
		return response{OK: true, Result: rec}
	case errors.Is(err, service.ErrNoRecord):
		return response{OK: false, Result: noResult, Code: "NO_RECORD", Message: "no scan recorded"}
	case errors.Is(err, service.ErrStaleRecord):
		return response{OK: false, Result: noResult, Code: "STALE_RECORD", Message: "last scan is for a different page"}
	default:
		h.logger.WithError(err).Error("read last scan")
		return response{OK: false, Result: noResult, Code: "DB_ERROR", Message: "failed to read last scan"}
	}
}

func (h *host) handleLookalike(ctx context.Context, req urlRequest) response {
	if strings.TrimSpace(req.URL) == "" {
		return response{OK: false, Code: "BAD_REQUEST", Message: "url required"}
	}
	verdict := domaincheck.CheckLookalike(req.URL, h.svc.KnownDomains(ctx))
	return response{OK: true, Data: verdict}
}

func (h *host) scan(ctx context.Context, req scanRequest) response {
	rec, err := h.svc.Analyze(ctx, req.page())
	if err != nil {
		if errors.Is(err, service.ErrInvalidURL) {
			return response{OK: false, Result: noResult, Code: "INVALID_URL", Message: "url must include scheme and host"}
		}
		h.logger.WithFields(logrus.Fields{"tab": *req.TabID, "url": req.URL}).WithError(err).Error("scan failed")
		return response{OK: false, Result: noResult, Code: "DB_ERROR", Message: "failed to store scan"}
	}
	return response{OK: true, Result: rec}
}

// readFrame reads a single Chrome native messaging frame from the buffered reader.
//
// Args:
//
//	r: buffered reader connected to stdin.
//
// Returns:
//
//	[]byte: decoded JSON payload from the frame.
//	error: non-nil when reading fails or the frame exceeds maxFrameSize.
//
// Behavior:
//  1. Reads the 4-byte little-endian length prefix.
//  2. Validates the declared length and allocates a payload buffer.
//  3. Reads the full payload into memory and returns it.
func readFrame(r *bufio.Reader) ([]byte, error) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return nil, err
	}
	length := binary.LittleEndian.Uint32(lenBuf)
	if length > maxFrameSize {
		return nil, fmt.Errorf("frame too large: %d", length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// writeFrame emits a response using Chrome's native messaging framing and flushes it.
func writeFrame(w *bufio.Writer, resp response) error {
	encoded, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	if len(encoded) > maxFrameSize {
		return fmt.Errorf("response too large: %d", len(encoded))
	}
	lenBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenBuf, uint32(len(encoded)))
	if _, err := w.Write(lenBuf); err != nil {
		return err
	}
	if _, err := w.Write(encoded); err != nil {
		return err
	}
	return w.Flush()
}
