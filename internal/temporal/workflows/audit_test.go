package workflows_test

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/testsuite"

	"github.com/syncshop/catalog-audit/internal/domain"
	"github.com/syncshop/catalog-audit/internal/temporal/activities"
	"github.com/syncshop/catalog-audit/internal/temporal/workflows"
	"github.com/syncshop/catalog-audit/internal/verifier"
)

type AuditSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env *testsuite.TestWorkflowEnvironment
}

func (s *AuditSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	s.env.RegisterActivity(&activities.Activities{})
	s.env.RegisterWorkflow(workflows.AuditWorkflow)
}

func (s *AuditSuite) AfterTest(_, _ string) {
	s.env.AssertExpectations(s.T())
}

func auditOutput(discrepancies, missing int, decision activities.PolicyOutcome) activities.RunAuditOutput {
	return activities.RunAuditOutput{
		SessionID: "sess-1",
		Summary:   domain.Summary{SessionID: "sess-1", Discrepancies: discrepancies, Missing: missing},
		Decision:  decision,
	}
}

func pending(auto int) activities.PolicyOutcome {
	return activities.PolicyOutcome{Approval: domain.ApprovalPending, Details: "requires operator selection", AutoApproved: auto}
}

func autoApproved(n int) activities.PolicyOutcome {
	return activities.PolicyOutcome{Approval: domain.ApprovalAutoApproved, Details: "auto-approved", AutoApproved: n}
}

func selecting(approval domain.ApprovalStatus, want activities.Selection) any {
	return mock.MatchedBy(func(in activities.ApplyCorrectionsInput) bool {
		return in.SessionID == "sess-1" && in.Approval == approval && reflect.DeepEqual(in.Selection, want)
	})
}

func applied(n int) activities.ApplyCorrectionsOutput {
	return activities.ApplyCorrectionsOutput{Attempted: n, Succeeded: n}
}

func (s *AuditSuite) result() workflows.WorkflowResult {
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
	var result workflows.WorkflowResult
	s.NoError(s.env.GetWorkflowResult(&result))
	return result
}

func (s *AuditSuite) approveAfter(d time.Duration, resp activities.ApprovalResponse) {
	s.env.RegisterDelayedCallback(func() {
		s.env.UpdateWorkflowNoRejection(workflows.UpdateNameApproval, "approval-1", s.T(), resp)
	}, d)
}

func (s *AuditSuite) TestNoDiscrepancies() {
	s.env.OnActivity("RunAudit", testAnyCtx, testAnyInput).Return(auditOutput(0, 0, activities.PolicyOutcome{}), nil)

	s.env.ExecuteWorkflow(workflows.AuditWorkflow, workflows.AuditInput{File: "regular.csv"})
	result := s.result()
	s.Equal(workflows.ReasonNoDiscrepancies, result.Reason)
	s.Equal("sess-1", result.State.SessionID)
}

func (s *AuditSuite) TestAuditError() {
	s.env.OnActivity("RunAudit", testAnyCtx, testAnyInput).Return(activities.RunAuditOutput{}, fmt.Errorf("audit: fetch feed: not found"))

	s.env.ExecuteWorkflow(workflows.AuditWorkflow, workflows.AuditInput{File: "nope.csv"})
	result := s.result()
	s.Equal(workflows.ReasonAuditError, result.Reason)
	s.Contains(result.State.Error, "not found")
}

func (s *AuditSuite) TestFullyAutoApproved_SkipsGate() {
	s.env.OnActivity("RunAudit", testAnyCtx, mock.MatchedBy(func(in activities.RunAuditInput) bool {
		return in.File == "Clearance_May.csv" &&
			reflect.DeepEqual(in.Policy.AutoFixKinds, []domain.DiscrepancyKind{domain.KindIncorrectTemplate})
	})).Return(auditOutput(1, 0, autoApproved(1)), nil)
	s.env.OnActivity("ApplyCorrections", testAnyCtx, selecting(domain.ApprovalAutoApproved, activities.Selection{Policy: true})).
		Return(applied(1), nil).Once()
	s.env.OnActivity("VerifyCorrections", testAnyCtx, mock.MatchedBy(func(in activities.VerifyCorrectionsInput) bool {
		return in.SessionID == "sess-1" && len(in.RecordIDs) == 0
	})).Return(activities.VerifyCorrectionsOutput{Checked: 1, Confirmed: 1, Recommendation: verifier.RecommendClose}, nil).Once()

	s.env.ExecuteWorkflow(workflows.AuditWorkflow, workflows.AuditInput{
		File:         "Clearance_May.csv",
		AutoFixKinds: []domain.DiscrepancyKind{domain.KindIncorrectTemplate},
	})
	result := s.result()
	s.Equal(workflows.ReasonCompleted, result.Reason)
	s.Equal(domain.ApprovalAutoApproved, result.State.Approval)
	s.Equal(workflows.PhaseCompleted, result.State.Phase)
	s.Require().NotNil(result.State.Verification)
	s.Equal(verifier.RecommendClose, result.State.Verification.Recommendation)
}

func (s *AuditSuite) TestOperatorApprovesAll() {
	s.env.OnActivity("RunAudit", testAnyCtx, testAnyInput).Return(auditOutput(3, 1, pending(0)), nil)
	s.env.OnActivity("ApplyCorrections", testAnyCtx, selecting(domain.ApprovalApproved, activities.Selection{FixAll: true})).
		Return(activities.ApplyCorrectionsOutput{
			Attempted: 2,
			Succeeded: 1,
			Failed:    1,
			Failures:  map[string]domain.Failure{"def/price": {Kind: domain.FailureRemote, Message: "Price must be positive"}},
			Remaining: 2,
		}, nil).Once()
	s.env.OnActivity("CreateProducts", testAnyCtx, mock.MatchedBy(func(in activities.CreateProductsInput) bool {
		return in.Approval == domain.ApprovalApproved && len(in.Keys) == 0
	})).Return(activities.CreateProductsOutput{Groups: 1, CreatedCount: 1, Created: []string{"xyz"}}, nil).Once()
	s.env.OnActivity("VerifyCorrections", testAnyCtx, testAnyInput).Return(activities.VerifyCorrectionsOutput{}, nil).Once()

	s.approveAfter(time.Second, activities.ApprovalResponse{Approved: true, By: "ops@syncshop", FixAll: true, CreateAll: true})

	s.env.ExecuteWorkflow(workflows.AuditWorkflow, workflows.AuditInput{File: "Clearance_May.csv"})
	result := s.result()
	s.Equal(workflows.ReasonCompleted, result.Reason)
	s.Equal(domain.ApprovalApproved, result.State.Approval)
	s.Equal("ops@syncshop", result.State.ApprovedBy)
	s.Require().NotNil(result.State.Corrections)
	s.Equal(1, result.State.Corrections.Failed)
	s.Require().NotNil(result.State.Creation)
	s.Equal([]string{"xyz"}, result.State.Creation.Created)
}

func (s *AuditSuite) TestOperatorSelectionMergesPolicyApproved() {
	s.env.OnActivity("RunAudit", testAnyCtx, testAnyInput).Return(auditOutput(2, 0, pending(1)), nil)
	s.env.OnActivity("ApplyCorrections", testAnyCtx, selecting(domain.ApprovalApproved, activities.Selection{
		Policy:    true,
		RecordIDs: []string{"def/price"},
	})).Return(applied(2), nil).Once()
	s.env.OnActivity("VerifyCorrections", testAnyCtx, testAnyInput).Return(activities.VerifyCorrectionsOutput{}, nil).Once()

	s.approveAfter(time.Second, activities.ApprovalResponse{Approved: true, By: "ops", RecordIDs: []string{"def/price"}})

	s.env.ExecuteWorkflow(workflows.AuditWorkflow, workflows.AuditInput{
		File:         "Clearance_May.csv",
		AutoFixKinds: []domain.DiscrepancyKind{domain.KindIncorrectTemplate},
	})
	result := s.result()
	s.Equal(workflows.ReasonCompleted, result.Reason)
	s.Require().NotNil(result.State.Decision)
	s.Equal(1, result.State.Decision.AutoApproved)
}

func (s *AuditSuite) TestCreateOnly_SkipsCorrectionsAndVerify() {
	s.env.OnActivity("RunAudit", testAnyCtx, testAnyInput).Return(auditOutput(1, 2, pending(0)), nil)
	s.env.OnActivity("CreateProducts", testAnyCtx, mock.MatchedBy(func(in activities.CreateProductsInput) bool {
		return reflect.DeepEqual(in.Keys, []string{"xyz"})
	})).Return(activities.CreateProductsOutput{Groups: 1, CreatedCount: 1, Created: []string{"xyz"}, Remaining: 1}, nil).Once()

	s.approveAfter(time.Second, activities.ApprovalResponse{Approved: true, By: "ops", CreateKeys: []string{"xyz"}})

	s.env.ExecuteWorkflow(workflows.AuditWorkflow, workflows.AuditInput{File: "Clearance_May.csv"})
	result := s.result()
	s.Equal(workflows.ReasonCompleted, result.Reason)
	s.Nil(result.State.Corrections)
	s.Nil(result.State.Verification)
	s.Require().NotNil(result.State.Creation)
	s.Equal(1, result.State.Creation.Remaining)
}

func (s *AuditSuite) TestOperatorDenies() {
	s.env.OnActivity("RunAudit", testAnyCtx, testAnyInput).Return(auditOutput(1, 0, pending(0)), nil)

	s.approveAfter(time.Second, activities.ApprovalResponse{Approved: false, By: "ops", Reason: "sale starts tomorrow"})

	s.env.ExecuteWorkflow(workflows.AuditWorkflow, workflows.AuditInput{File: "Clearance_May.csv"})
	result := s.result()
	s.Equal(workflows.ReasonHumanDenied, result.Reason)
	s.Equal(domain.ApprovalDenied, result.State.Approval)
	s.Nil(result.State.Corrections)
}

func (s *AuditSuite) TestApprovalTimesOut() {
	s.env.OnActivity("RunAudit", testAnyCtx, testAnyInput).Return(auditOutput(1, 0, pending(0)), nil)

	s.env.ExecuteWorkflow(workflows.AuditWorkflow, workflows.AuditInput{File: "Clearance_May.csv"})
	result := s.result()
	s.Equal(workflows.ReasonApprovalTimedOut, result.Reason)
	s.Equal(domain.ApprovalTimedOut, result.State.Approval)
}

func (s *AuditSuite) TestTimeoutAppliesPolicyApprovedRecords() {
	s.env.OnActivity("RunAudit", testAnyCtx, testAnyInput).Return(auditOutput(2, 0, pending(1)), nil)
	s.env.OnActivity("ApplyCorrections", testAnyCtx, selecting(domain.ApprovalAutoApproved, activities.Selection{Policy: true})).
		Return(applied(1), nil).Once()
	s.env.OnActivity("VerifyCorrections", testAnyCtx, testAnyInput).Return(activities.VerifyCorrectionsOutput{}, nil).Once()

	s.env.ExecuteWorkflow(workflows.AuditWorkflow, workflows.AuditInput{
		File:            "Clearance_May.csv",
		AutoFixKinds:    []domain.DiscrepancyKind{domain.KindIncorrectTemplate},
		ApprovalTimeout: time.Hour,
	})
	result := s.result()
	s.Equal(workflows.ReasonCompleted, result.Reason)
	s.Equal(domain.ApprovalTimedOut, result.State.Approval)
	s.Require().NotNil(result.State.Corrections)
}

func (s *AuditSuite) TestValidatorRejectsMalformedRecordID() {
	s.env.OnActivity("RunAudit", testAnyCtx, testAnyInput).Return(auditOutput(1, 0, pending(0)), nil)

	var rejected []error
	for i, id := range []string{"nope/bogus", "nokind"} {
		s.env.RegisterDelayedCallback(func() {
			s.env.UpdateWorkflow(workflows.UpdateNameApproval, fmt.Sprintf("bad-%d", i), &testsuite.TestUpdateCallback{
				OnReject:   func(err error) { rejected = append(rejected, err) },
				OnAccept:   func() {},
				OnComplete: func(any, error) {},
			}, activities.ApprovalResponse{Approved: true, By: "ops", RecordIDs: []string{id}})
		}, time.Duration(i+1)*time.Second)
	}
	s.approveAfter(5*time.Second, activities.ApprovalResponse{Approved: false, By: "ops"})

	s.env.ExecuteWorkflow(workflows.AuditWorkflow, workflows.AuditInput{File: "Clearance_May.csv"})
	result := s.result()
	s.Equal(workflows.ReasonHumanDenied, result.Reason)
	s.Require().Len(rejected, 2)
	s.Contains(rejected[0].Error(), `unknown discrepancy kind in record id "nope/bogus"`)
	s.Contains(rejected[1].Error(), `malformed record id "nokind"`)
}

func (s *AuditSuite) TestValidatorRequiresBy() {
	s.env.OnActivity("RunAudit", testAnyCtx, testAnyInput).Return(auditOutput(1, 0, pending(0)), nil)

	var rejected error
	s.env.RegisterDelayedCallback(func() {
		s.env.UpdateWorkflow(workflows.UpdateNameApproval, "anon", &testsuite.TestUpdateCallback{
			OnReject:   func(err error) { rejected = err },
			OnAccept:   func() {},
			OnComplete: func(any, error) {},
		}, activities.ApprovalResponse{Approved: true})
	}, time.Second)

	s.env.ExecuteWorkflow(workflows.AuditWorkflow, workflows.AuditInput{File: "Clearance_May.csv"})
	result := s.result()
	s.Equal(workflows.ReasonApprovalTimedOut, result.Reason)
	s.Require().Error(rejected)
	s.Contains(rejected.Error(), "'by' field is required")
}

func (s *AuditSuite) TestStateQueryWhileWaiting() {
	s.env.OnActivity("RunAudit", testAnyCtx, testAnyInput).Return(auditOutput(1, 0, pending(0)), nil)

	var state workflows.AuditState
	s.env.RegisterDelayedCallback(func() {
		v, err := s.env.QueryWorkflow(workflows.QueryNameState)
		s.NoError(err)
		s.NoError(v.Get(&state))
	}, time.Minute)
	s.approveAfter(time.Hour, activities.ApprovalResponse{Approved: false, By: "ops"})

	s.env.ExecuteWorkflow(workflows.AuditWorkflow, workflows.AuditInput{File: "Clearance_May.csv"})
	s.Equal(workflows.ReasonHumanDenied, s.result().Reason)
	s.Equal(workflows.PhaseApproval, state.Phase)
	s.Equal(domain.ApprovalPending, state.Approval)
	s.Equal("sess-1", state.SessionID)
}

func (s *AuditSuite) TestDispatchError() {
	s.env.OnActivity("RunAudit", testAnyCtx, testAnyInput).Return(auditOutput(1, 0, autoApproved(1)), nil)
	s.env.OnActivity("ApplyCorrections", testAnyCtx, testAnyInput).
		Return(activities.ApplyCorrectionsOutput{}, fmt.Errorf("cannot dispatch: approval status is pending")).Once()

	s.env.ExecuteWorkflow(workflows.AuditWorkflow, workflows.AuditInput{
		File:         "Clearance_May.csv",
		AutoFixKinds: []domain.DiscrepancyKind{domain.KindIncorrectTemplate},
	})
	result := s.result()
	s.Equal(workflows.ReasonDispatchError, result.Reason)
	s.Contains(result.State.Error, "corrections failed")
}

func TestAuditSuite(t *testing.T) {
	suite.Run(t, new(AuditSuite))
}
