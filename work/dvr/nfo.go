package dvr

import (
	"encoding/xml"
	"fmt"
	"os"

	"gamedvr/work/games"
)

// episodeDetails is the Kodi/Jellyfin episode sidecar format, which lets a
// media library file recordings under the league as a show.
type episodeDetails struct {
	XMLName   xml.Name `xml:"episodedetails"`
	Title     string   `xml:"title"`
	ShowTitle string   `xml:"showtitle"`
	Plot      string   `xml:"plot"`
	Genre     string   `xml:"genre"`
	Aired     string   `xml:"aired"`
	Season    string   `xml:"season"`
	Episode   string   `xml:"episode"`
}

// WriteNfo writes the metadata sidecar for one capture attempt next to its
// recording.
func WriteNfo(path string, g games.Game, attempt int) error {
	details := episodeDetails{
		Title: fmt.Sprintf("%s-%s-%s-%02d",
			g.GameTime.Format("01-02"), g.ShortAwayTeam(), g.ShortHomeTeam(), attempt),
		ShowTitle: g.League,
		Plot: fmt.Sprintf("%s at %s on %s (%02d)",
			g.AwayTeam, g.HomeTeam, g.GameTime.Format("2006-01-02"), attempt),
		Genre:   "Sport",
		Aired:   g.GameTime.Format("2006-01-02"),
		Season:  g.GameTime.Format("2006-01-02"),
		Episode: fmt.Sprintf("%02d", attempt),
	}

	body, err := xml.MarshalIndent(details, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append([]byte(xml.Header), body...), 0o644)
}
