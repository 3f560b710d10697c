// Package views renders the dashboard HTML as templ components.
package views

//go:generate go run github.com/a-h/templ/cmd/templ@v0.3.960 generate

import (
	"strings"
	"time"

	"github.com/JonMunkholm/resellers/internal/core"
)

// DashboardData is everything the dashboard page shows.
type DashboardData struct {
	Query       *core.QueryResult // nil until a file has been loaded
	LoadedAt    time.Time
	Filter      core.Filter
	ExportURL   string
	UploadFile  string   // name of the file whose upload failed
	Errors      []string // ingestion errors for UploadFile
	MaxUploadMB int64
}

var statusOptions = []struct {
	value core.StatusFilter
	label string
}{
	{core.StatusAll, "All"},
	{core.StatusActive, "Active"},
	{core.StatusInactive, "Inactive"},
}

// statusSelected treats an unset status as "all".
func statusSelected(current, value core.StatusFilter) bool {
	return value == current || (current == "" && value == core.StatusAll)
}

func acceptList() string {
	return strings.Join(core.SupportedExtensions(), ",")
}

func sourceLine(fileName string, loadedAt time.Time) string {
	if loadedAt.IsZero() {
		return fileName
	}
	return fileName + " · loaded " + loadedAt.Format("02/01/2006 15:04")
}

func badgeClass(active bool) string {
	if active {
		return "badge-active"
	}
	return "badge-inactive"
}

func statusLabel(active bool) string {
	if active {
		return "Active"
	}
	return "Inactive"
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
