// Package poster composes matchup artwork by placing two team logos side
// by side, using PNG logo assets organized by league on disk.
package poster

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"gamedvr/work/logger"
)

// Service looks up team logos under logoDir/{league}/*.png. A logo file
// matches a team when the team name contains the filename.
type Service struct {
	logoDir string
}

func NewService(logoDir string) *Service {
	return &Service{logoDir: logoDir}
}

// Combine renders the away logo on the left and the home logo on the
// right, returning the composite as PNG bytes. Missing logos are an error
// so callers can treat posters as best-effort.
func (s *Service) Combine(league, homeTeam, awayTeam string) ([]byte, error) {
	awayLogo, err := s.logoPath(league, awayTeam)
	if err != nil {
		return nil, err
	}
	homeLogo, err := s.logoPath(league, homeTeam)
	if err != nil {
		return nil, err
	}

	left, err := loadPNG(awayLogo)
	if err != nil {
		return nil, err
	}
	right, err := loadPNG(homeLogo)
	if err != nil {
		return nil, err
	}

	lb, rb := left.Bounds(), right.Bounds()
	height := lb.Dy()
	if rb.Dy() > height {
		height = rb.Dy()
	}

	combined := image.NewRGBA(image.Rect(0, 0, lb.Dx()+rb.Dx(), height))
	draw.Draw(combined, image.Rect(0, 0, lb.Dx(), lb.Dy()), left, lb.Min, draw.Over)
	draw.Draw(combined, image.Rect(lb.Dx(), 0, lb.Dx()+rb.Dx(), rb.Dy()), right, rb.Min, draw.Over)

	var buf bytes.Buffer
	if err := png.Encode(&buf, combined); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteSidecar drops a poster next to a recording. Failures are logged and
// swallowed since artwork never blocks a capture.
func (s *Service) WriteSidecar(path, league, homeTeam, awayTeam string) {
	data, err := s.Combine(league, homeTeam, awayTeam)
	if err != nil {
		logger.Warn("No poster for %s vs %s: %v", awayTeam, homeTeam, err)
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		logger.Warn("Writing poster %s: %v", path, err)
	}
}

func (s *Service) logoPath(league, team string) (string, error) {
	leagueDir := filepath.Join(s.logoDir, strings.ToLower(league))
	entries, err := os.ReadDir(leagueDir)
	if err != nil {
		return "", err
	}

	team = strings.ToLower(strings.ReplaceAll(team, " ", "_"))
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".png") {
			continue
		}
		base := strings.TrimSuffix(name, ".png")
		if strings.Contains(team, strings.ToLower(base)) {
			return filepath.Join(leagueDir, name), nil
		}
	}
	return "", fmt.Errorf("no logo for %q in %s", team, leagueDir)
}

func loadPNG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return png.Decode(f)
}
