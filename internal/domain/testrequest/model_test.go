package testrequest

import "testing"

func TestRequestStatus_Valid(t *testing.T) {
	for _, s := range AllStatuses() {
		if !s.Valid() {
			t.Errorf("status %q should be valid", s)
		}
	}
	if RequestStatus("ARCHIVED").Valid() {
		t.Error("unknown status should not be valid")
	}
	if RequestStatus("").Valid() {
		t.Error("empty status should not be valid")
	}
}

func TestRequestStatus_RankIsStrictlyIncreasing(t *testing.T) {
	statuses := AllStatuses()
	for i := 1; i < len(statuses); i++ {
		if statuses[i].Rank() <= statuses[i-1].Rank() {
			t.Errorf("expected %s to rank above %s", statuses[i], statuses[i-1])
		}
	}
	if RequestStatus("bogus").Rank() != 0 {
		t.Error("expected unknown status to rank 0")
	}
}

func TestCanTransition_ConsultationEdges(t *testing.T) {
	if !CanTransition(StatusLabTestCompleted, StatusDoctorAssigned) {
		t.Error("expected LAB_TEST_COMPLETED -> DOCTOR_ASSIGNED")
	}
	if !CanTransition(StatusDoctorAssigned, StatusCompleted) {
		t.Error("expected DOCTOR_ASSIGNED -> COMPLETED")
	}
}

func TestCanTransition_NoOtherEdges(t *testing.T) {
	allowed := map[[2]RequestStatus]bool{
		{StatusLabTestCompleted, StatusDoctorAssigned}: true,
		{StatusDoctorAssigned, StatusCompleted}:        true,
	}
	for _, from := range AllStatuses() {
		for _, to := range AllStatuses() {
			got := CanTransition(from, to)
			if got != allowed[[2]RequestStatus{from, to}] {
				t.Errorf("CanTransition(%s, %s) = %v", from, to, got)
			}
			if got && to.Rank() <= from.Rank() {
				t.Errorf("transition %s -> %s moves backwards", from, to)
			}
		}
	}
}

func TestTestRequest_AssignedTo(t *testing.T) {
	doc := "doctor-a"
	tr := &TestRequest{AssigneeID: &doc}
	if !tr.AssignedTo("doctor-a") {
		t.Error("expected request to be assigned to doctor-a")
	}
	if tr.AssignedTo("doctor-b") {
		t.Error("expected request not to be assigned to doctor-b")
	}
	if (&TestRequest{}).AssignedTo("doctor-a") {
		t.Error("unassigned request should not match any doctor")
	}
}
