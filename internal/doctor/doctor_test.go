package doctor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkByName(t *testing.T, report *Report, name string) CheckResult {
	t.Helper()
	for _, c := range report.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("check %q not in report", name)
	return CheckResult{}
}

func TestRun_FullyConfiguredPasses(t *testing.T) {
	t.Setenv("RQS_DATA_DIR", t.TempDir())
	t.Setenv("RQS_API_KEYS", "svc-key-1:email-responder")
	t.Setenv("RQS_KEY_SERVICE_API_KEY", "vault-key")
	t.Setenv("RQS_RUNS_SERVICE_API_KEY", "runs-key")

	report := Run(context.Background(), Options{SkipUpstream: true})
	require.NotNil(t, report)
	assert.Equal(t, "pass", report.Status)
	assert.Equal(t, 0, report.Summary.Warn)
	assert.Equal(t, 0, report.Summary.Fail)

	assert.Equal(t, "pass", checkByName(t, report, "data_dir_writable").Status)
	assert.Equal(t, "pass", checkByName(t, report, "qualification_db").Status)
	assert.Equal(t, "pass", checkByName(t, report, "key_service_credentials").Status)
}

func TestRun_MissingKeyServiceCredentialFails(t *testing.T) {
	t.Setenv("RQS_DATA_DIR", t.TempDir())
	t.Setenv("RQS_API_KEYS", "svc-key-1")
	t.Setenv("RQS_KEY_SERVICE_API_KEY", "")
	t.Setenv("RQS_RUNS_SERVICE_API_KEY", "runs-key")

	report := Run(context.Background(), Options{SkipUpstream: true})
	assert.Equal(t, "fail", report.Status)
	assert.Equal(t, "fail", checkByName(t, report, "key_service_credentials").Status)
}

func TestRun_MissingOptionalCredentialsWarn(t *testing.T) {
	t.Setenv("RQS_DATA_DIR", t.TempDir())
	t.Setenv("RQS_API_KEYS", "")
	t.Setenv("RQS_KEY_SERVICE_API_KEY", "vault-key")
	t.Setenv("RQS_RUNS_SERVICE_API_KEY", "")

	report := Run(context.Background(), Options{SkipUpstream: true})
	assert.Equal(t, "warn", report.Status)
	assert.Equal(t, "warn", checkByName(t, report, "inbound_api_keys").Status)
	assert.Equal(t, "warn", checkByName(t, report, "runs_service_credentials").Status)
	assert.Zero(t, report.Summary.Fail)
}
