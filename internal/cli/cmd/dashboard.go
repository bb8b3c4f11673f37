package cmd

import (
	"craftdeck/internal/cli/ui"
)

// RunDashboard alternates between the server table and the view it asks
// for until the user quits.
func RunDashboard() {
	for {
		nav := ui.RunDashboard(Client, Profile)
		var back bool
		switch nav.View {
		case ui.ViewConsole:
			back = ui.RunLogs(Client, nav.ServerID, Profile)
		case ui.ViewFiles:
			back = ui.RunFiles(Client, nav.ServerID, Profile)
		case ui.ViewBackups:
			back = ui.RunBackups(Client, nav.ServerID, Profile)
		}
		if !back {
			return
		}
	}
}
