package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/raffis/rigor/internal/aggregate"
	"github.com/raffis/rigor/internal/matrix"
	"github.com/raffis/rigor/internal/orchestrator"
	"github.com/raffis/rigor/pkg/apis/core/v1beta1"
)

// runStages runs all stages concurrently. A stage waits for the stages it needs and
// is cancelled if any of them did not pass. Results keep the declaration order.
func (p *Pipeline) runStages(ctx context.Context, stageRunner *orchestrator.Orchestrator, plan []PlannedStage) []v1beta1.StageResult {
	results := make([]v1beta1.StageResult, len(plan))
	done := make(map[string]chan struct{}, len(plan))
	passed := make(map[string]bool, len(plan))
	var mu sync.Mutex

	for _, planned := range plan {
		done[planned.Stage.Name] = make(chan struct{})
	}

	var g errgroup.Group
	for i, planned := range plan {
		g.Go(func() error {
			stage := planned.Stage
			defer close(done[stage.Name])

			var failedNeeds []string
			for _, need := range stage.Needs {
				<-done[need]

				mu.Lock()
				if !passed[need] {
					failedNeeds = append(failedNeeds, need)
				}
				mu.Unlock()
			}

			var result v1beta1.StageResult
			if len(failedNeeds) > 0 {
				reason := fmt.Errorf("needs `%s` which did not pass", strings.Join(failedNeeds, "`, `"))
				logr.FromContextOrDiscard(ctx).Info("skip stage", "stage", stage.Name, "reason", reason.Error())
				result = cancelledStage(stage, planned.Jobs, reason)
			} else {
				result = stageRunner.RunJobs(ctx, stage, planned.Jobs)
			}

			mu.Lock()
			passed[stage.Name] = result.Passed()
			mu.Unlock()

			results[i] = result
			return nil
		})
	}

	_ = g.Wait()
	return results
}

func cancelledStage(stage v1beta1.Stage, jobs []matrix.Job, reason error) v1beta1.StageResult {
	now := time.Now()
	results := make([]v1beta1.JobResult, 0, len(jobs))

	for _, job := range jobs {
		result := v1beta1.JobResult{
			ID:          job.ID,
			Name:        job.Name,
			Stage:       job.Stage,
			Environment: job.Environment,
			Matrix:      job.Matrix,
			Outcome:     v1beta1.OutcomeCancelled,
			StartedAt:   now,
			EndedAt:     now,
			Error:       reason.Error(),
		}

		for i, step := range job.Steps {
			result.Steps = append(result.Steps, v1beta1.StepResult{
				Name:    step.Name,
				Index:   i,
				Outcome: v1beta1.OutcomeSkipped,
			})
		}

		results = append(results, result)
	}

	stageResult := aggregate.Stage(stage.Name, results)
	stageResult.Error = reason.Error()
	return stageResult
}
