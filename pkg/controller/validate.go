package controller

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/arakoodev/cliscale/pkg/apierror"
	"github.com/arakoodev/cliscale/pkg/types"
)

// maxShellFieldBytes bounds command and install_cmd: exactly 500 bytes
// is accepted, 501 is not.
const maxShellFieldBytes = 500

var codeURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^https://github\.com/[^/]+/[^/]+/tree/[^/]+/.+$`),
	regexp.MustCompile(`(?i)\.zip$`),
	regexp.MustCompile(`(?i)\.(tar\.gz|tgz)$`),
	regexp.MustCompile(`(?i)\.git$`),
}

// forbiddenShellSubstrings block the obvious command-substitution
// primitives from reaching the worker's shell unescaped.
var forbiddenShellSubstrings = []string{"$(", "`", "${"}

func validateCreateSessionRequest(req *types.CreateSessionRequest) error {
	if req.CodeURL == "" {
		return apierror.New(apierror.CodeBadRequest, "code_url is required")
	}
	if req.Command == "" {
		return apierror.New(apierror.CodeBadRequest, "command is required")
	}
	if err := checkForbiddenSubstrings("code_url", req.CodeURL); err != nil {
		return err
	}
	if !matchesCodeURL(req.CodeURL) {
		return apierror.New(apierror.CodeBadRequest, "code_url must be a github tree URL or a .zip/.tar.gz/.tgz/.git URL")
	}
	if err := validateShellField("command", req.Command); err != nil {
		return err
	}
	if req.InstallCmd != "" {
		if err := validateShellField("install_cmd", req.InstallCmd); err != nil {
			return err
		}
	}
	return nil
}

func matchesCodeURL(url string) bool {
	for _, pattern := range codeURLPatterns {
		if pattern.MatchString(url) {
			return true
		}
	}
	return false
}

func validateShellField(name, value string) error {
	if len(value) > maxShellFieldBytes {
		return apierror.New(apierror.CodeBadRequest, fmt.Sprintf("%s exceeds %d bytes", name, maxShellFieldBytes))
	}
	return checkForbiddenSubstrings(name, value)
}

func checkForbiddenSubstrings(name, value string) error {
	for _, sub := range forbiddenShellSubstrings {
		if strings.Contains(value, sub) {
			return apierror.New(apierror.CodeBadRequest, fmt.Sprintf("%s must not contain %q", name, sub))
		}
	}
	return nil
}
