package pattern

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// Region is an Azure location.
type Region struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

// LiveSource fetches reference data from Azure. Every call may fail; the
// caller falls back to cached then static data.
type LiveSource interface {
	Regions(ctx context.Context) ([]Region, error)
	Services(ctx context.Context) ([]string, error)
	RegionalAvailability(ctx context.Context, region string) ([]string, error)
}

// AzureCLISource shells out to the az CLI, which carries the operator's
// login session.
type AzureCLISource struct {
	timeout time.Duration
	run     func(ctx context.Context, args ...string) ([]byte, error)
}

func NewAzureCLISource(timeout time.Duration) *AzureCLISource {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &AzureCLISource{timeout: timeout, run: runAz}
}

func runAz(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "az", args...)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("az %s failed: %w (stderr: %s)", args[0], err, truncateBytes(exitErr.Stderr, 256))
		}
		return nil, fmt.Errorf("az %s failed: %w", args[0], err)
	}
	return out, nil
}

func (s *AzureCLISource) query(ctx context.Context, dst any, args ...string) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.run(timeoutCtx, args...)
	if err != nil {
		if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("az timeout after %v", s.timeout)
		}
		return err
	}
	if err := json.Unmarshal(out, dst); err != nil {
		return fmt.Errorf("parse az output: %w", err)
	}
	return nil
}

func (s *AzureCLISource) Regions(ctx context.Context) ([]Region, error) {
	var regions []Region
	err := s.query(ctx, &regions, "account", "list-locations",
		"--query", "[?metadata.regionType=='Physical'].{name:name, displayName:displayName}", "-o", "json")
	if err != nil {
		return nil, err
	}
	if len(regions) == 0 {
		return nil, errors.New("az returned no regions")
	}
	return regions, nil
}

func (s *AzureCLISource) Services(ctx context.Context) ([]string, error) {
	var namespaces []string
	err := s.query(ctx, &namespaces, "provider", "list",
		"--query", "[?registrationState=='Registered'].namespace", "-o", "json")
	if err != nil {
		return nil, err
	}
	if len(namespaces) == 0 {
		return nil, errors.New("az returned no providers")
	}
	return namespaces, nil
}

// RegionalAvailability lists the VM SKU names offered in region.
func (s *AzureCLISource) RegionalAvailability(ctx context.Context, region string) ([]string, error) {
	var skus []string
	err := s.query(ctx, &skus, "vm", "list-skus",
		"--location", region, "--resource-type", "virtualMachines",
		"--query", "[].name", "-o", "json")
	if err != nil {
		return nil, err
	}
	return skus, nil
}

func truncateBytes(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
