package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/tigerroll/surfin-flow/example/tutorial/internal/app"
	"github.com/tigerroll/surfin-flow/pkg/batch/adapter/database"
	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
	usecase "github.com/tigerroll/surfin-flow/pkg/batch/core/application/usecase"
	jsl "github.com/tigerroll/surfin-flow/pkg/batch/core/config/jsl"
	supportConfig "github.com/tigerroll/surfin-flow/pkg/batch/core/config/support"
	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
)

type tutorial struct {
	launcher  usecase.JobLauncher
	registry  *supportConfig.JobRegistry
	databases database.DBConnectionResolver
	exportDir string
}

func startTutorial(t *testing.T, extra ...fx.Option) tutorial {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("METADATA_DB_PATH", filepath.Join(dir, "metadata.db"))
	t.Setenv("TUTORIAL_DB_NAME", filepath.Join(dir, "tutorial.db"))
	t.Setenv("EXPORT_BASE_DIR", filepath.Join(dir, "output"))

	var tut tutorial
	tut.exportDir = filepath.Join(dir, "output")
	cl := app.CommandLine{EnvFile: filepath.Join(dir, "missing.env"), Serve: true}
	options := GetApplicationOptions(context.Background(), cl, embeddedConfig, embeddedJSL)
	options = append(options, extra...)
	options = append(options, fx.Populate(&tut.launcher, &tut.registry, &tut.databases))
	fxApp := fxtest.New(t, options...)
	fxApp.RequireStart()
	t.Cleanup(fxApp.RequireStop)
	return tut
}

// outcomes replaces the random parts of the tutorial jobs: randomFailTasklet fails
// for the step ids in failing, and oddDecider returns parity.
type outcomes struct {
	mu      sync.Mutex
	failing map[string]bool
	parity  model.ExitStatus
}

func (o *outcomes) set(parity model.ExitStatus, failing ...string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.parity = parity
	o.failing = map[string]bool{}
	for _, id := range failing {
		o.failing[id] = true
	}
}

func (o *outcomes) DeciderName() string { return "oddDecider" }

func (o *outcomes) Decide(context.Context, *model.JobExecution, *model.StepExecution) (model.ExitStatus, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.parity, nil
}

// install overrides the tutorial's random components. It runs after the component
// modules registered theirs and before jobs are compiled on start.
func (o *outcomes) install(registry *jsl.ComponentRegistry) {
	registry.Register(jsl.KindTasklet, "randomFailTasklet", func(properties map[string]string) (interface{}, error) {
		id := properties["id"]
		return port.TaskletFunc(func(context.Context, *model.StepExecution) (model.ExitStatus, error) {
			o.mu.Lock()
			fail := o.failing[id]
			o.mu.Unlock()
			if fail {
				return model.ExitStatusFailed, errors.New(id + " failed")
			}
			return model.ExitStatusCompleted, nil
		}), nil
	})
	registry.Register(jsl.KindDecider, "oddDecider", func(map[string]string) (interface{}, error) {
		return o, nil
	})
}

func stepNames(je *model.JobExecution) []string {
	names := make([]string, 0, len(je.StepExecutions))
	for _, se := range je.StepExecutions {
		names = append(names, se.StepName)
	}
	return names
}

func (tut tutorial) run(t *testing.T, jobName string, params model.JobParameters) *model.JobExecution {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	je, err := tut.launcher.Run(ctx, jobName, params)
	require.NoError(t, err)
	return je
}

func TestTutorial_RegistersEveryJob(t *testing.T) {
	tut := startTutorial(t)
	assert.ElementsMatch(t, []string{
		"simpleJob",
		"stepNextJob",
		"stepNextConditionalJob",
		"deciderJob",
		"jdbcCursorItemReaderJob",
		"jdbcPagingItemReaderJob",
		"payPagingFailJob",
		"payExportJob",
	}, tut.registry.Names())
}

func TestTutorial_SimpleJobRunsOncePerParameters(t *testing.T) {
	tut := startTutorial(t)
	params, err := model.ParseJobParameters([]string{"requestDate(date)=2024-01-31"})
	require.NoError(t, err)

	je := tut.run(t, "simpleJob", params)
	assert.Equal(t, model.BatchStatusCompleted, je.Status)
	require.Len(t, je.StepExecutions, 2)

	_, err = tut.launcher.Run(context.Background(), "simpleJob", params)
	assert.Error(t, err)
}

func TestTutorial_FlowJobs(t *testing.T) {
	tut := startTutorial(t)
	for _, name := range []string{"stepNextJob", "stepNextConditionalJob", "deciderJob"} {
		je := tut.run(t, name, model.NewJobParameters())
		assert.Equal(t, model.BatchStatusCompleted, je.Status, name)
	}
}

func TestTutorial_StepNextConditionalJobRoutes(t *testing.T) {
	o := &outcomes{}
	tut := startTutorial(t, fx.Invoke(o.install))

	cases := []struct {
		name    string
		failing []string
		want    []string
		failed  string
	}{
		{name: "step1 fails", failing: []string{"conditionalJobStep1"}, want: []string{"conditionalJobStep1", "step3"}, failed: "conditionalJobStep1"},
		{name: "all complete", want: []string{"conditionalJobStep1", "step2", "step3"}},
		{name: "step2 fails", failing: []string{"step2"}, want: []string{"conditionalJobStep1", "step2", "step4"}, failed: "step2"},
	}
	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o.set("", tc.failing...)
			params := model.NewJobParameters()
			params.Put("run.id", int64(i+1))

			je := tut.run(t, "stepNextConditionalJob", params)
			assert.Equal(t, model.BatchStatusCompleted, je.Status)
			assert.Equal(t, tc.want, stepNames(je))
			if tc.failed != "" {
				se, ok := je.FindStepExecution(tc.failed)
				require.True(t, ok)
				assert.Equal(t, model.BatchStatusFailed, se.Status)
			}
		})
	}
}

func TestTutorial_DeciderJobRoutesOnParity(t *testing.T) {
	o := &outcomes{}
	tut := startTutorial(t, fx.Invoke(o.install))

	for i, tc := range []struct {
		parity model.ExitStatus
		want   []string
	}{
		{parity: "ODD", want: []string{"startStep", "oddStep"}},
		{parity: "EVEN", want: []string{"startStep", "evenStep"}},
	} {
		o.set(tc.parity)
		params := model.NewJobParameters()
		params.Put("run.id", int64(i+1))

		je := tut.run(t, "deciderJob", params)
		assert.Equal(t, model.BatchStatusCompleted, je.Status, tc.parity)
		assert.Equal(t, tc.want, stepNames(je), tc.parity)
	}
}

func TestTutorial_DatabaseJobs(t *testing.T) {
	tut := startTutorial(t)

	cursor := tut.run(t, "jdbcCursorItemReaderJob", model.NewJobParameters())
	require.Equal(t, model.BatchStatusCompleted, cursor.Status)
	require.Len(t, cursor.StepExecutions, 2)
	assert.Equal(t, 12, cursor.StepExecutions[1].ReadCount)

	paging := tut.run(t, "jdbcPagingItemReaderJob", model.NewJobParameters())
	require.Equal(t, model.BatchStatusCompleted, paging.Status)

	settle := tut.run(t, "payPagingFailJob", model.NewJobParameters())
	require.Equal(t, model.BatchStatusCompleted, settle.Status)
	assert.Equal(t, 11, settle.StepExecutions[1].WriteCount)

	conn, err := tut.databases.ResolveDBConnection(context.Background(), "tutorial")
	require.NoError(t, err)
	db := conn.GormDB()

	var copied int64
	require.NoError(t, db.Table("pay2").Count(&copied).Error)
	assert.Equal(t, int64(8), copied)

	var unpaid int64
	require.NoError(t, db.Table("payment").Where("success_status = ?", false).Count(&unpaid).Error)
	assert.Zero(t, unpaid)
}

func TestTutorial_PayExportJob(t *testing.T) {
	tut := startTutorial(t)

	je := tut.run(t, "payExportJob", model.NewJobParameters())
	require.Equal(t, model.BatchStatusCompleted, je.Status)
	assert.Equal(t, 12, je.StepExecutions[1].WriteCount)

	var files []string
	require.NoError(t, filepath.WalkDir(tut.exportDir, func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			files = append(files, path)
		}
		return err
	}))
	assert.NotEmpty(t, files)
	for _, day := range []string{"2024-01-30", "2024-01-31", "2024-02-01"} {
		matches, err := filepath.Glob(filepath.Join(tut.exportDir, "exports", "pay", "dt="+day, "*.parquet"))
		require.NoError(t, err)
		assert.NotEmpty(t, matches, day)
	}
}
