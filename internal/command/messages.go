package command

const (
	msgRegisterUsage    = "Usage: register <name> <api_key> <workspace_id>"
	msgWorkspaceNumeric = "⚠ workspace id must be numeric"
	msgRegisterFirst    = "⚠ Please register first.\n" + msgRegisterUsage
	msgProjectRequired  = "⚠ project name required. Usage: start <project> [description]"
	msgNoRunningEntry   = "ℹ no running entry"
	msgNothingRunning   = "ℹ nothing is being tracked right now"
	msgDaysNumeric      = "⚠ days must be numeric. Usage: report [days]"
	msgStoreBusy        = "⚠ error: storage is busy, please try again"
)

const helpText = `📚 Commands
・register <name> <api_key> <workspace_id>
・start <project> [description]
・stop
・status
・report [days] (1-30, default 1)
・help`
