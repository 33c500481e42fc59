package onboarding

// SetupWizardWelcome is the welcome message for the setup wizard
const SetupWizardWelcome = `
╔════════════════════════════════════════════════════════════════╗
║                                                                ║
║                    💊 Welcome to MediTrack                     ║
║                                                                ║
║            Medication reminders and adherence tracking         ║
║                                                                ║
╚════════════════════════════════════════════════════════════════╝

This wizard writes a meditrack.yaml for you. Press Enter to accept
the default shown in brackets.

`

// SetupCompleteMessage is shown when setup completes
const SetupCompleteMessage = `
✅ Setup complete!

Configuration file:
  {{.ConfigPath}}
{{.EnvLine}}
## Next Steps:

  meditrack add --name Metformin --dosage 500mg --times 08:00,20:00
  meditrack today
  meditrack serve

Run "meditrack doctor" to check the installation.
`
