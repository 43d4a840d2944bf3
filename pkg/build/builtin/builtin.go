// Package builtin provides the build functions available to every build
// definition.
package builtin

import "github.com/cross19xx/eas-build/pkg/build"

// Function ids
const (
	Checkout           = "checkout"
	InstallNodeModules = "install-node-modules"
	UploadArtifact     = "upload-artifact"
)

// Functions returns fresh definitions of the builtin functions.
func Functions() []*build.FunctionDefinition {
	return []*build.FunctionDefinition{
		{
			Name:        Checkout,
			Description: "Clone a git repository into the working directory",
			Params: map[string]build.ParamSpec{
				"repository": {Type: "string", Required: true, Description: "Repository URL"},
				"ref":        {Type: "string", Default: "main", Description: "Branch or tag to check out"},
				"path":       {Type: "string", Default: ".", Description: "Destination directory"},
				"depth":      {Type: "number", Default: 1, Description: "Clone depth"},
			},
			Steps: []*build.StepDefinition{
				{
					ID:  "clone",
					Run: "git clone --depth ${{ params.depth }} --branch ${{ params.ref }} ${{ params.repository }} ${{ params.path }}",
				},
			},
		},
		{
			Name:        InstallNodeModules,
			Description: "Install JavaScript dependencies with the chosen package manager",
			Params: map[string]build.ParamSpec{
				"package-manager": {Type: "string", Default: "npm", Description: "npm, yarn or pnpm"},
			},
			Steps: []*build.StepDefinition{
				{
					ID:  "install",
					Run: `${{ params["package-manager"] == "npm" ? "npm ci" : params["package-manager"] + " install --frozen-lockfile" }}`,
				},
			},
		},
		{
			Name:        UploadArtifact,
			Description: "Record a file as a build artifact",
			Params: map[string]build.ParamSpec{
				"type": {Type: "string", Default: build.ArtifactTypeBuildArtifact, Pattern: build.ArtifactTypePattern, Description: "Artifact type tag"},
				"path": {Type: "string", Required: true, Description: "File path, relative to the working directory"},
			},
			Steps: []*build.StepDefinition{
				{
					ID:  "upload",
					Run: "::upload-artifact type=${{ params.type }}::${{ params.path }}",
				},
			},
		},
	}
}

// Register adds the builtin functions to registry.
func Register(registry *build.FunctionRegistry) error {
	for _, fn := range Functions() {
		if err := registry.Register(fn); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry holding only the builtin functions.
func NewRegistry() (*build.FunctionRegistry, error) {
	registry := build.NewFunctionRegistry()
	if err := Register(registry); err != nil {
		return nil, err
	}
	return registry, nil
}
