// SPDX-License-Identifier: AGPL-3.0-only
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// LastBuildParams are the arguments of get_last_build.
type LastBuildParams struct {
	ProductName string `json:"product_name" description:"The product name, e.g. XYZ"`
	BranchName  string `json:"branch_name" description:"The branch name, e.g. XYZ_1_2_MAIN, XYZ_1_1_MAIN. User might ask for XYZ 120, XYZ 12, XYZ_1_2, XYZ 1.2, XYZ 120 etc., what they mean is XYZ_1_2_MAIN. Similarly User might ask for XYZ 110, XYZ 11, XYZ_1_1, XYZ 1.1, XYZ 110 etc., what they mean is XYZ_1_1_MAIN"`
}

// BuildInformationParams are the arguments of get_build_information.
type BuildInformationParams struct {
	ProductName string `json:"product_name" description:"The product name, e.g. XYZ"`
	BranchName  string `json:"branch_name" description:"The branch name, e.g. XYZ_1_2_MAIN, XYZ_1_1_MAIN. User might ask for XYZ 120, XYZ 12, XYZ_1_2, XYZ 1.2, XYZ 120 etc., what they mean is XYZ_1_2_MAIN. Similarly User might ask for XYZ 110, XYZ 11, XYZ_1_1, XYZ 1.1, XYZ 110 etc., what they mean is XYZ_1_1_MAIN"`
	BuildID     string `json:"build_id" description:"The build ID, e.g. 12345"`
}

// LastBuild is the result of get_last_build.
type LastBuild struct {
	ProductName string `json:"product_name"`
	BranchName  string `json:"branch_name"`
	BuildID     string `json:"build_id"`
}

// BuildStage is one stage of a build pipeline.
type BuildStage struct {
	StageName string `json:"stage_name"`
	Status    string `json:"status"`
	Duration  string `json:"duration"`
	LogsURL   string `json:"logs_url"`
}

// BuildInformation is the result of get_build_information.
type BuildInformation struct {
	ProductName        string       `json:"product_name"`
	BranchName         string       `json:"branch_name"`
	BuildID            string       `json:"build_id"`
	BuildLabel         string       `json:"build_label"`
	BuildURL           string       `json:"build_url"`
	BuildLog           string       `json:"build_log"`
	BuildDuration      string       `json:"build_duration"`
	BuildTriggeredBy   string       `json:"build_triggered_by"`
	BuildTriggeredTime string       `json:"build_triggered_time"`
	BuildStatus        string       `json:"build_status"`
	Stages             []BuildStage `json:"stages"`
}

// GetLastBuild simulates a lookup of the last build of a branch.
func GetLastBuild(_ context.Context, p LastBuildParams) (interface{}, error) {
	return indent(LastBuild{
		ProductName: p.ProductName,
		BranchName:  p.BranchName,
		BuildID:     "12345",
	})
}

// GetBuildInformation simulates a lookup of a specific build.
func GetBuildInformation(_ context.Context, p BuildInformationParams) (interface{}, error) {
	id := p.BuildID
	if id == "" {
		return nil, fmt.Errorf("build_id is required")
	}
	if _, err := strconv.ParseUint(id, 10, 64); err != nil {
		return nil, fmt.Errorf("build_id must be numeric, got %q", id)
	}
	base := fmt.Sprintf("%s/%s/%s", p.ProductName, p.BranchName, id)
	return indent(BuildInformation{
		ProductName:        p.ProductName,
		BranchName:         p.BranchName,
		BuildID:            id,
		BuildLabel:         "Build #" + id,
		BuildURL:           "https://builds.artifactory.com/" + base,
		BuildLog:           "https://logs.artifactory.com/" + base,
		BuildDuration:      "2 hours",
		BuildTriggeredBy:   "Mark Twain",
		BuildTriggeredTime: "2023-10-01T12:00:00Z",
		BuildStatus:        "successful",
		Stages: []BuildStage{
			{StageName: "Build", Status: "successful", Duration: "1 hour", LogsURL: "https://logs.artifactory.com/" + base + "/build"},
			{StageName: "Test", Status: "successful", Duration: "2 hour", LogsURL: "https://logs.artifactory.com/" + base + "/test"},
		},
	})
}

func indent(v interface{}) (string, error) {
	b, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// BuildTools returns the build lookup tools used by the function calling
// examples and the MCP build server.
func BuildTools() []Tool {
	return []Tool{
		Func("get_build_information",
			"Get detailed information about a specific build. "+
				"Build information includes product name, branch name, build Id, build label, "+
				"build URL, build duration, build log, build triggered by, build triggered time, "+
				"build status, and its stages.",
			GetBuildInformation),
		Func("get_last_build",
			"Get information of last build for the given product and branch. "+
				"This function is not to be called if the user asks for a specific build ID or "+
				"calls for first build. "+
				`The function returns a json containing last build's information. `+
				`Format: { "product_name": product_name, "branch_name": branch_name, "build_id": build_id }`,
			GetLastBuild),
	}
}

// RegisterBuildTools adds BuildTools to r.
func RegisterBuildTools(r *Registry) error {
	for _, t := range BuildTools() {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}
