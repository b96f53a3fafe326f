package runner

import (
	"context"
	"fmt"
)

// Terraform wraps the terraform CLI against a single working directory.
type Terraform struct {
	Runner  Runner
	VarFile string
}

// Init runs terraform init with optional backend configuration pairs.
func (t *Terraform) Init(ctx context.Context, backend map[string]any) error {
	args := []string{"init", "-input=false"}
	for key, value := range backend {
		args = append(args, fmt.Sprintf("-backend-config=%s=%v", key, value))
	}
	_, err := t.Runner.Run(ctx, "terraform", args, nil)
	return err
}

// Apply runs terraform apply with auto-approve against the var file.
func (t *Terraform) Apply(ctx context.Context) error {
	args := []string{"apply", "-input=false", "-auto-approve"}
	if t.VarFile != "" {
		args = append(args, "-var-file="+t.VarFile)
	}
	_, err := t.Runner.Run(ctx, "terraform", args, nil)
	return err
}

// Destroy runs terraform destroy with auto-approve against the var file.
func (t *Terraform) Destroy(ctx context.Context) error {
	args := []string{"destroy", "-input=false", "-auto-approve"}
	if t.VarFile != "" {
		args = append(args, "-var-file="+t.VarFile)
	}
	_, err := t.Runner.Run(ctx, "terraform", args, nil)
	return err
}

// Packer wraps the packer CLI against a single template directory.
type Packer struct {
	Runner Runner
}

// Build runs packer build with the given var file against template.
func (p *Packer) Build(ctx context.Context, template, varFile string) error {
	args := []string{"build", "-timestamp-ui"}
	if varFile != "" {
		args = append(args, "-var-file="+varFile)
	}
	args = append(args, template)
	_, err := p.Runner.Run(ctx, "packer", args, nil)
	return err
}

// Git wraps the handful of git operations workflows need.
type Git struct {
	Runner Runner
}

// Pull fast-forwards the current branch.
func (g *Git) Pull(ctx context.Context) error {
	_, err := g.Runner.Run(ctx, "git", []string{"pull", "--ff-only"}, nil)
	return err
}

// RevParse returns the current HEAD commit hash.
func (g *Git) RevParse(ctx context.Context) (string, error) {
	out, err := g.Runner.Run(ctx, "git", []string{"rev-parse", "HEAD"}, nil)
	if err != nil {
		return "", err
	}
	return trimOutput(out), nil
}

func trimOutput(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
