package server

import (
	"errors"
	"io"
	"net"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/NodePath81/hyperspeed/internal/geoip"
	"github.com/NodePath81/hyperspeed/internal/version"
)

func setNoCache(c *gin.Context) {
	c.Header("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
}

func (s *Server) handlePing(c *gin.Context) {
	s.deps.Metrics.Request("ping")
	setNoCache(c)
	c.Status(http.StatusOK)
}

// handleDownload streams the payload pattern until the client goes away.
func (s *Server) handleDownload(c *gin.Context) {
	s.deps.Metrics.Request("download")
	release := s.deps.Metrics.StreamStarted("download")
	defer release()

	setNoCache(c)
	c.Header("Content-Type", "application/octet-stream")
	c.Status(http.StatusOK)

	ctx := c.Request.Context()
	limiter := NewLimiter(float64(s.cfg.StreamRateLimitBps) / 8)
	step := len(s.payload)
	if limiter != nil && step > pacedWriteSize {
		step = pacedWriteSize
	}
	for {
		for off := 0; off < len(s.payload); off += step {
			end := min(off+step, len(s.payload))
			if err := limiter.Wait(ctx, end-off); err != nil {
				return
			}
			n, err := c.Writer.Write(s.payload[off:end])
			s.deps.Metrics.AddDownloadBytes(n)
			if err != nil {
				return
			}
		}
	}
}

// handleUpload discards the request body.
func (s *Server) handleUpload(c *gin.Context) {
	s.deps.Metrics.Request("upload")
	release := s.deps.Metrics.StreamStarted("upload")
	defer release()

	body := http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	n, err := io.Copy(io.Discard, body)
	s.deps.Metrics.AddUploadBytes(n)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload too large"})
			return
		}
		// Read failures stay 5xx so clients retry; only 413 is permanent.
		s.logger.Debug("upload read failed", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	setNoCache(c)
	c.Status(http.StatusOK)
}

type identityResponse struct {
	IP       string `json:"ip"`
	Hostname string `json:"hostname"`
	Version  string `json:"version"`
	geoip.Location
}

func (s *Server) handleIdentity(c *gin.Context) {
	s.deps.Metrics.Request("identity")
	ip := c.ClientIP()
	resp := identityResponse{IP: ip, Version: version.Version}
	resp.Hostname, _ = os.Hostname()
	if loc, err := s.deps.GeoIP.Lookup(net.ParseIP(ip)); err == nil {
		resp.Location = loc
	} else {
		s.logger.Debug("geoip lookup failed", "ip", ip, "error", err)
	}
	c.JSON(http.StatusOK, resp)
}
