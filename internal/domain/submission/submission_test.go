package submission

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cs161-staff/extensions/internal/domain/assignment"
	"github.com/cs161-staff/extensions/internal/domain/shared"
)

var testQuestions = []map[string]string{
	{"question": "Email Address", "key": KeyEmail},
	{"question": "SID", "key": KeySID},
	{"question": "Are you a DSP student?", "key": KeyIsDSP},
	{"question": "Do you know which assignments you need extensions on?", "key": KeyKnowsAssignments},
	{"question": "Which assignments?", "key": KeyAssignments},
	{"question": "How many days?", "key": KeyDays},
	{"question": "Why?", "key": KeyReason},
	{"question": "Are you working with a partner?", "key": KeyHasPartner},
	{"question": "Partner email?", "key": KeyPartnerEmail},
	{"question": "What's your game plan?", "key": KeyGamePlan},
	{"question": "Timestamp", "key": KeyTimestamp},
}

func testCatalog(t *testing.T) *assignment.Catalog {
	t.Helper()
	catalog, err := assignment.NewCatalog([]*assignment.Assignment{
		{ID: "hw1", Name: "Homework 1", DueDate: time.Date(2022, 6, 21, 23, 59, 0, 0, time.UTC)},
		{ID: "hw2", Name: "Homework 2", DueDate: time.Date(2022, 6, 28, 23, 59, 0, 0, time.UTC)},
		{ID: "proj1", Name: "Project 1", Partner: true},
	})
	assert.NoError(t, err)
	return catalog
}

func basePayload() map[string][]string {
	return map[string][]string{
		"Email Address": {"Student@Berkeley.EDU"},
		"SID":           {"12345"},
		"Are you a DSP student?": {"No"},
		"Do you know which assignments you need extensions on?": {"Yes"},
		"Which assignments?": {"Homework 1"},
		"How many days?":     {"3"},
		"Why?":               {"got sick"},
		"Timestamp":          {"6/20/2022 10:00:00"},
	}
}

func TestNewMapsQuestionsToKeys(t *testing.T) {
	sub, err := New(basePayload(), testQuestions, time.UTC)
	assert.NoError(t, err)
	assert.Equal(t, shared.Email("student@berkeley.edu"), sub.Email())
	assert.Equal(t, "12345", sub.SID())
	assert.Equal(t, "got sick", sub.Reason())
	assert.Equal(t, time.Date(2022, 6, 20, 10, 0, 0, 0, time.UTC), sub.Timestamp())
}

func TestNewUnmappedQuestionsAreIgnored(t *testing.T) {
	payload := basePayload()
	payload["A brand new question the sheet does not know about"] = []string{"whatever"}
	_, err := New(payload, testQuestions, time.UTC)
	assert.NoError(t, err)
}

func TestNewMissingKeyIsConfigurationError(t *testing.T) {
	questions := append([]map[string]string{}, testQuestions...)
	questions = append(questions, map[string]string{"question": "Orphaned question", "key": ""})
	_, err := New(basePayload(), questions, time.UTC)
	assert.Error(t, err)
	assert.True(t, shared.IsConfiguration(err))
}

func TestNewBadTimestamp(t *testing.T) {
	payload := basePayload()
	payload["Timestamp"] = []string{"not a timestamp"}
	_, err := New(payload, testQuestions, time.UTC)
	assert.Error(t, err)
	assert.True(t, shared.IsFormInput(err))
}

func TestClaimsDSP(t *testing.T) {
	sub, err := New(basePayload(), testQuestions, time.UTC)
	assert.NoError(t, err)
	assert.False(t, sub.ClaimsDSP())

	payload := basePayload()
	payload["Are you a DSP student?"] = []string{"Yes"}
	sub, err = New(payload, testQuestions, time.UTC)
	assert.NoError(t, err)
	assert.True(t, sub.ClaimsDSP())

	// Anything other than a literal "No" counts as a claim.
	payload["Are you a DSP student?"] = []string{"My letter is pending"}
	sub, err = New(payload, testQuestions, time.UTC)
	assert.NoError(t, err)
	assert.True(t, sub.ClaimsDSP())
	assert.Equal(t, "My letter is pending", sub.DSPStatus())
}

func TestKnowsAssignmentsDefaultsTrue(t *testing.T) {
	payload := basePayload()
	delete(payload, "Do you know which assignments you need extensions on?")
	sub, err := New(payload, testQuestions, time.UTC)
	assert.NoError(t, err)
	assert.True(t, sub.KnowsAssignments())
}

func TestHasPartnerDefaultsFalse(t *testing.T) {
	sub, err := New(basePayload(), testQuestions, time.UTC)
	assert.NoError(t, err)
	assert.False(t, sub.HasPartner())
}

func TestPartnerEmails(t *testing.T) {
	payload := basePayload()
	payload["Are you working with a partner?"] = []string{"Yes"}
	payload["Partner email?"] = []string{"Partner1@Berkeley.edu, partner2@berkeley.edu"}
	sub, err := New(payload, testQuestions, time.UTC)
	assert.NoError(t, err)
	assert.True(t, sub.HasPartner())
	assert.Equal(t, []shared.Email{"partner1@berkeley.edu", "partner2@berkeley.edu"}, sub.PartnerEmails())
}

func TestRequests(t *testing.T) {
	catalog := testCatalog(t)
	payload := basePayload()
	payload["Which assignments?"] = []string{"Homework 1, Homework 2"}
	payload["How many days?"] = []string{"3, 5"}

	sub, err := New(payload, testQuestions, time.UTC)
	assert.NoError(t, err)

	requests, err := sub.Requests(catalog)
	assert.NoError(t, err)
	assert.Len(t, requests, 2)
	assert.Equal(t, "hw1", requests[0].Assignment.ID)
	assert.Equal(t, 3, requests[0].Days)
	assert.Equal(t, "hw2", requests[1].Assignment.ID)
	assert.Equal(t, 5, requests[1].Days)

	num, err := sub.NumRequests(catalog)
	assert.NoError(t, err)
	assert.Equal(t, 2, num)
}

func TestRequestsBroadcastsSingleDayValue(t *testing.T) {
	catalog := testCatalog(t)
	payload := basePayload()
	payload["Which assignments?"] = []string{"Homework 1, Homework 2, Project 1"}
	payload["How many days?"] = []string{"4"}

	sub, err := New(payload, testQuestions, time.UTC)
	assert.NoError(t, err)

	requests, err := sub.Requests(catalog)
	assert.NoError(t, err)
	assert.Len(t, requests, 3)
	for _, req := range requests {
		assert.Equal(t, 4, req.Days)
	}
}

func TestRequestsEmptyAssignmentList(t *testing.T) {
	catalog := testCatalog(t)

	// A student who says they know their assignments but leaves both
	// answers blank must be rejected, not parsed into zero requests.
	payload := basePayload()
	payload["Which assignments?"] = []string{""}
	payload["How many days?"] = []string{""}
	sub, err := New(payload, testQuestions, time.UTC)
	assert.NoError(t, err)

	_, err = sub.Requests(catalog)
	assert.Error(t, err)
	assert.True(t, shared.IsFormInput(err))

	// Whitespace and stray commas are just as empty.
	payload["Which assignments?"] = []string{" , "}
	payload["How many days?"] = []string{"3"}
	sub, err = New(payload, testQuestions, time.UTC)
	assert.NoError(t, err)

	_, err = sub.Requests(catalog)
	assert.Error(t, err)
	assert.True(t, shared.IsFormInput(err))
}

func TestRequestsDedupesRepeatedAssignment(t *testing.T) {
	catalog := testCatalog(t)
	payload := basePayload()
	payload["Which assignments?"] = []string{"Homework 1, Homework 2, Homework 1"}
	payload["How many days?"] = []string{"3, 5, 4"}

	sub, err := New(payload, testQuestions, time.UTC)
	assert.NoError(t, err)

	// Last day value wins, first position is kept.
	requests, err := sub.Requests(catalog)
	assert.NoError(t, err)
	assert.Len(t, requests, 2)
	assert.Equal(t, "hw1", requests[0].Assignment.ID)
	assert.Equal(t, 4, requests[0].Days)
	assert.Equal(t, "hw2", requests[1].Assignment.ID)
	assert.Equal(t, 5, requests[1].Days)

	num, err := sub.NumRequests(catalog)
	assert.NoError(t, err)
	assert.Equal(t, 2, num)
}

func TestRequestsCountMismatch(t *testing.T) {
	catalog := testCatalog(t)
	payload := basePayload()
	payload["Which assignments?"] = []string{"Homework 1, Homework 2, Project 1"}
	payload["How many days?"] = []string{"3, 5"}

	sub, err := New(payload, testQuestions, time.UTC)
	assert.NoError(t, err)

	_, err = sub.Requests(catalog)
	assert.Error(t, err)
	assert.True(t, shared.IsFormInput(err))
}

func TestRequestsInvalidDays(t *testing.T) {
	catalog := testCatalog(t)

	payload := basePayload()
	payload["How many days?"] = []string{"three"}
	sub, err := New(payload, testQuestions, time.UTC)
	assert.NoError(t, err)
	_, err = sub.Requests(catalog)
	assert.True(t, shared.IsFormInput(err))

	payload = basePayload()
	payload["How many days?"] = []string{"0"}
	sub, err = New(payload, testQuestions, time.UTC)
	assert.NoError(t, err)
	_, err = sub.Requests(catalog)
	assert.True(t, shared.IsFormInput(err))

	payload = basePayload()
	payload["How many days?"] = []string{"-2"}
	sub, err = New(payload, testQuestions, time.UTC)
	assert.NoError(t, err)
	_, err = sub.Requests(catalog)
	assert.True(t, shared.IsFormInput(err))
}

func TestRequestsUnknownAssignment(t *testing.T) {
	catalog := testCatalog(t)
	payload := basePayload()
	payload["Which assignments?"] = []string{"Homework 99"}

	sub, err := New(payload, testQuestions, time.UTC)
	assert.NoError(t, err)

	_, err = sub.Requests(catalog)
	assert.Error(t, err)
	assert.True(t, shared.IsConfiguration(err))
}

func TestMeetingRequestAccessors(t *testing.T) {
	payload := basePayload()
	payload["Do you know which assignments you need extensions on?"] = []string{"No"}
	payload["What's your game plan?"] = []string{"need to talk through my options"}

	sub, err := New(payload, testQuestions, time.UTC)
	assert.NoError(t, err)
	assert.False(t, sub.KnowsAssignments())
	assert.Equal(t, "need to talk through my options", sub.GamePlan())

	// Assignment accessors are a caller bug on a meeting request.
	assert.Panics(t, func() { sub.Reason() })
	assert.Panics(t, func() { sub.RawAssignments() })
}
