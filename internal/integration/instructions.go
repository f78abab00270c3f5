package integration

import (
	"fmt"

	"onboardline/internal/domain"
)

type Step struct {
	Number      int    `json:"number"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type Resources struct {
	Technical   []string `json:"technical"`
	Access      []string `json:"access"`
	Information []string `json:"information"`
}

// InstructionSet is the setup script handed to one stakeholder role for one integration type.
type InstructionSet struct {
	IntegrationType   domain.IntegrationType `json:"integration_type"`
	Role              domain.Role            `json:"role"`
	Title             string                 `json:"title"`
	Steps             []Step                 `json:"steps"`
	RequiredResources Resources              `json:"required_resources"`
	EstimatedHours    float64                `json:"estimated_hours"`
}

type guide struct {
	label     string
	steps     [][2]string
	resources Resources
	hours     float64
}

var guides = map[domain.IntegrationType]guide{
	domain.IntegrationSIS: {
		label: "Student Information System",
		steps: [][2]string{
			{"Enable API access", "Turn on the SIS vendor API and create a dedicated integration user."},
			{"Generate credentials", "Issue an API key or an OAuth client id/secret pair scoped to roster read access."},
			{"Record the base URL", "Capture the SIS tenant base URL and add it to the integration configuration."},
			{"Map roster fields", "Map students, sections and enrollments to the platform fields; confirm identifier formats."},
			{"Run a roster sync", "Trigger a test sync against a single school and compare counts with the SIS."},
		},
		resources: Resources{
			Technical:   []string{"SIS admin console", "API documentation from the SIS vendor"},
			Access:      []string{"SIS administrator account", "Permission to create integration users"},
			Information: []string{"School and term identifiers", "Roster field mapping sheet"},
		},
		hours: 8,
	},
	domain.IntegrationCRM: {
		label: "CRM",
		steps: [][2]string{
			{"Create a connected app", "Register a connected application in the CRM with API access."},
			{"Authorize access", "Provide an API key, OAuth client pair or access token for the connected app."},
			{"Select synced objects", "Choose which contact and account objects are synchronized."},
			{"Verify a contact sync", "Sync a small contact segment and confirm field values end to end."},
		},
		resources: Resources{
			Technical:   []string{"CRM setup console"},
			Access:      []string{"CRM administrator role"},
			Information: []string{"Object and field mapping", "Sync frequency requirements"},
		},
		hours: 6,
	},
	domain.IntegrationSFTP: {
		label: "SFTP",
		steps: [][2]string{
			{"Provide the host", "Share the SFTP hostname and port; allow-list the platform egress addresses."},
			{"Create an account", "Create a dedicated SFTP user with a password or an SSH public key."},
			{"Agree on the drop folder", "Agree on remote paths, file naming and the delivery schedule."},
			{"Exchange a test file", "Upload a sample file and confirm it is picked up and processed."},
		},
		resources: Resources{
			Technical:   []string{"SFTP server", "SSH key tooling"},
			Access:      []string{"Firewall change rights", "SFTP user administration"},
			Information: []string{"File layout specification", "Delivery schedule"},
		},
		hours: 5,
	},
	domain.IntegrationAPI: {
		label: "API",
		steps: [][2]string{
			{"Share the endpoint", "Provide the API base URL and any environment-specific paths."},
			{"Issue a credential", "Create an API key or bearer token with the minimum required scopes."},
			{"Review the contract", "Walk through request and response schemas, rate limits and error codes."},
			{"Send a sample request", "Exercise one read and one write call and confirm the payloads."},
		},
		resources: Resources{
			Technical:   []string{"API reference", "HTTP client for testing"},
			Access:      []string{"Developer portal account"},
			Information: []string{"Rate limits", "Payload examples"},
		},
		hours: 6,
	},
	domain.IntegrationOther: {
		label: "custom",
		steps: [][2]string{
			{"Describe the system", "Document what the external system does and how data should move."},
			{"Collect configuration", "Gather connection details and credentials into the integration configuration."},
			{"Agree on a test", "Define a manual check that proves data moves correctly."},
			{"Run the test", "Execute the agreed check and record the outcome."},
		},
		resources: Resources{
			Technical:   []string{"Vendor documentation"},
			Access:      []string{"Administrator contact at the vendor"},
			Information: []string{"Data flow description"},
		},
		hours: 4,
	},
}

// Instructions returns the setup script for a type and role. It is total over every input;
// unknown types use the custom guide and unknown roles get the coordination script.
func Instructions(t domain.IntegrationType, role domain.Role) InstructionSet {
	g, ok := guides[t]
	if !ok {
		g = guides[domain.IntegrationOther]
		t = domain.IntegrationOther
	}
	set := InstructionSet{IntegrationType: t, Role: role, RequiredResources: g.resources}
	switch role {
	case domain.RoleTechnicalLead:
		set.Title = fmt.Sprintf("%s integration: technical setup", g.label)
		set.Steps = number(append(append([][2]string{
			{"Review the architecture", fmt.Sprintf("Confirm how the %s integration fits the data architecture and security requirements.", g.label)},
		}, g.steps...),
			[2]string{"Sign off validation", "Run the platform validation tests and sign off once every test passes."}))
		set.EstimatedHours = g.hours
	case domain.RoleITContact:
		set.Title = fmt.Sprintf("%s integration: access and configuration", g.label)
		set.Steps = number(append([][2]string{
			{"Provision access", "Create service accounts and grant the permissions listed under required resources."},
		}, g.steps...))
		set.EstimatedHours = g.hours * 0.75
	case domain.RoleOwner:
		set.Title = fmt.Sprintf("%s integration: approval", g.label)
		set.Steps = number([][2]string{
			{"Review the summary", fmt.Sprintf("Read the %s integration summary prepared by the project manager.", g.label)},
			{"Approve data sharing", "Confirm the data shared with the platform is approved by your organization."},
			{"Sign off go-live", "Give final approval once validation has passed."},
		})
		set.RequiredResources = Resources{
			Technical:   []string{},
			Access:      []string{},
			Information: []string{"Integration summary", "Data sharing agreement"},
		}
		set.EstimatedHours = 1.5
	default:
		set.Title = fmt.Sprintf("%s integration: coordination", g.label)
		set.Steps = number([][2]string{
			{"Confirm owners", "Confirm who on the customer side owns access, configuration and testing."},
			{"Schedule working sessions", "Book the setup and testing sessions with the technical contacts."},
			{"Track validation", "Follow the validation results and chase any failing test."},
			{"Report readiness", "Report integration readiness to the owner ahead of go-live."},
		})
		set.EstimatedHours = 3
	}
	return set
}

func number(steps [][2]string) []Step {
	out := make([]Step, 0, len(steps))
	for i, s := range steps {
		out = append(out, Step{Number: i + 1, Title: s[0], Description: s[1]})
	}
	return out
}
