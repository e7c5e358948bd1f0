package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/iago/obra-back/internal/domain"
	"github.com/iago/obra-back/internal/weekkey"
)

// Fixture is the YAML layout accepted by "sitectl seed".
type Fixture struct {
	Users []FixtureUser `yaml:"users"`
	Sites []FixtureSite `yaml:"sites"`
}

type FixtureUser struct {
	ID    string      `yaml:"id" json:"id"`
	Name  string      `yaml:"name" json:"name"`
	Email string      `yaml:"email" json:"email,omitempty"`
	Role  domain.Role `yaml:"role" json:"role"`
}

type FixtureSite struct {
	Name       string        `yaml:"name"`
	Location   string        `yaml:"location"`
	EngineerID string        `yaml:"engineer_id"`
	WeekKey    weekkey.Key   `yaml:"week_key"`
	Tasks      []FixtureTask `yaml:"tasks"`
}

type FixtureTask struct {
	Title                  string          `yaml:"title" json:"title"`
	Priority               domain.Priority `yaml:"priority" json:"priority,omitempty"`
	DayName                string          `yaml:"day_name" json:"day_name,omitempty"`
	ExpectedCompletionDate string          `yaml:"expected_completion_date" json:"expected_completion_date,omitempty"`
	Notes                  string          `yaml:"notes" json:"notes,omitempty"`
}

// parseFixture decodes and validates a fixture file. Errors name the
// offending entry so large files are easy to fix.
func parseFixture(data []byte) (Fixture, error) {
	var fixture Fixture
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&fixture); err != nil {
		return Fixture{}, fmt.Errorf("parse fixture: %w", err)
	}

	var problems []error
	for i, user := range fixture.Users {
		if strings.TrimSpace(user.ID) == "" || strings.TrimSpace(user.Name) == "" {
			problems = append(problems, fmt.Errorf("users[%d]: id and name are required", i))
		}
		if !user.Role.Valid() {
			problems = append(problems, fmt.Errorf("users[%d]: unknown role %q", i, user.Role))
		}
	}
	for i, site := range fixture.Sites {
		if strings.TrimSpace(site.Name) == "" {
			problems = append(problems, fmt.Errorf("sites[%d]: name is required", i))
		}
		if site.WeekKey != "" && !weekkey.Valid(string(site.WeekKey)) {
			problems = append(problems, fmt.Errorf("sites[%d]: week_key %q must look like YYYY-Www", i, site.WeekKey))
		}
		for j, task := range site.Tasks {
			if strings.TrimSpace(task.Title) == "" {
				problems = append(problems, fmt.Errorf("sites[%d].tasks[%d]: title is required", i, j))
			}
			if task.Priority != "" && !task.Priority.Valid() {
				problems = append(problems, fmt.Errorf("sites[%d].tasks[%d]: unknown priority %q", i, j, task.Priority))
			}
		}
	}
	if len(problems) > 0 {
		return Fixture{}, errors.Join(problems...)
	}
	return fixture, nil
}

var seedCmd = &cobra.Command{
	Use:   "seed [fixture.yaml]",
	Short: "Create users, sites and tasks from a YAML fixture",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read fixture: %w", err)
		}
		fixture, err := parseFixture(data)
		if err != nil {
			return err
		}

		client := newClientFromConfig()
		for _, user := range fixture.Users {
			if _, err := client.CreateUser(user); err != nil {
				return fmt.Errorf("create user %s: %w", user.ID, err)
			}
		}
		tasks := 0
		for _, fixtureSite := range fixture.Sites {
			site, err := client.CreateSite(fixtureSite)
			if err != nil {
				return fmt.Errorf("create site %s: %w", fixtureSite.Name, err)
			}
			for _, task := range fixtureSite.Tasks {
				if _, err := client.CreateTask(site.ID, task); err != nil {
					return fmt.Errorf("create task %q on %s: %w", task.Title, site.ID, err)
				}
				tasks++
			}
		}
		cmd.Printf("Seeded %d user(s), %d site(s), %d task(s)\n", len(fixture.Users), len(fixture.Sites), tasks)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
