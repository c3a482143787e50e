// Package sysprobe takes host resource snapshots for the admission gate.
package sysprobe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/fruitsalade/fruitsalade/organizer/internal/models"
)

// ErrUnsupported is returned on platforms without a host reader.
var ErrUnsupported = errors.New("resource probe not supported on this platform")

// host is the raw reading taken from the operating system.
type host struct {
	load1      float64 // one-minute load average
	cpus       int
	totalBytes uint64
	availBytes uint64
	diskBlocks uint64
	diskAvail  uint64
}

// Probe reads CPU, memory and disk figures from the host and optionally
// measures TCP connect latency to a fixed address.
type Probe struct {
	diskPath    string
	latencyAddr string
	timeout     time.Duration
	read        func(diskPath string) (host, error)
}

// New creates a Probe. diskPath is the filesystem whose usage is reported.
// An empty latencyAddr skips the latency check.
func New(diskPath, latencyAddr string) *Probe {
	if diskPath == "" {
		diskPath = "/"
	}
	return &Probe{
		diskPath:    diskPath,
		latencyAddr: latencyAddr,
		timeout:     2 * time.Second,
		read:        readHost,
	}
}

// Snapshot implements guardrail.ResourceProbe.
func (p *Probe) Snapshot(ctx context.Context) (models.SystemStatus, error) {
	h, err := p.read(p.diskPath)
	if err != nil {
		return models.SystemStatus{}, fmt.Errorf("read host resources: %w", err)
	}
	s := status(h)

	if p.latencyAddr != "" {
		ms, err := p.latency(ctx)
		if err != nil {
			return models.SystemStatus{}, fmt.Errorf("probe latency: %w", err)
		}
		s.NetworkLatencyMS = ms
	}
	return s, nil
}

func status(h host) models.SystemStatus {
	var s models.SystemStatus
	if h.cpus > 0 {
		s.CPUUsage = round1(math.Min(100, h.load1/float64(h.cpus)*100))
	}
	if h.totalBytes > 0 {
		used := h.totalBytes - min(h.availBytes, h.totalBytes)
		s.MemoryUsage = round1(float64(used) / float64(h.totalBytes) * 100)
	}
	s.MemoryAvailable = round1(float64(h.availBytes) / (1 << 20))
	if h.diskBlocks > 0 {
		used := h.diskBlocks - min(h.diskAvail, h.diskBlocks)
		s.DiskUsage = round1(float64(used) / float64(h.diskBlocks) * 100)
	}
	return s
}

func (p *Probe) latency(ctx context.Context) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var d net.Dialer
	start := time.Now()
	conn, err := d.DialContext(ctx, "tcp", p.latencyAddr)
	if err != nil {
		return 0, err
	}
	elapsed := time.Since(start)
	conn.Close()
	return round1(float64(elapsed.Microseconds()) / 1000), nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
