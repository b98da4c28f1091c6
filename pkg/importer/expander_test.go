package importer

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/civicbridge/platform/pkg/common/logger"
	"github.com/civicbridge/platform/pkg/mapper"
	"github.com/civicbridge/platform/pkg/registry"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}

// fakeSink implements registry.Sink in memory and records the order of
// registrant creations.
type fakeSink struct {
	nextID  int64
	created []map[string]interface{}

	idTypes   map[string]int64
	kinds     map[string]int64
	relations map[string]int64
	genders   map[string]string

	createErr error
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		idTypes:   map[string]int64{"National ID": 11},
		kinds:     map[string]int64{"Head": 21},
		relations: map[string]int64{"Spouse": 31},
		genders:   map[string]string{"Female": "F", "Male": "M"},
	}
}

func (f *fakeSink) CreateRegistrant(ctx context.Context, record map[string]interface{}) (int64, error) {
	if f.createErr != nil {
		return 0, f.createErr
	}
	f.nextID++
	f.created = append(f.created, record)
	return f.nextID, nil
}

func (f *fakeSink) FindIDType(ctx context.Context, name string) (registry.LookupMatch, bool, error) {
	id, ok := f.idTypes[name]
	return registry.LookupMatch{ID: id, Name: name}, ok, nil
}

func (f *fakeSink) FindMembershipKind(ctx context.Context, name string) (registry.LookupMatch, bool, error) {
	id, ok := f.kinds[name]
	return registry.LookupMatch{ID: id, Name: name}, ok, nil
}

func (f *fakeSink) FindRelationshipKind(ctx context.Context, name string) (registry.LookupMatch, bool, error) {
	id, ok := f.relations[name]
	return registry.LookupMatch{ID: id, Name: name}, ok, nil
}

func (f *fakeSink) FindGender(ctx context.Context, value string) (registry.GenderMatch, bool, error) {
	code, ok := f.genders[value]
	return registry.GenderMatch{Value: value, Code: code}, ok, nil
}

func fixedClock(year int, month time.Month, day int) func() time.Time {
	return func() time.Time {
		return time.Date(year, month, day, 12, 0, 0, 0, time.UTC)
	}
}

func TestExpandPhoneNumbersVerbatim(t *testing.T) {
	e := NewExpander(newFakeSink(), mapper.TargetIndividual)
	record := map[string]interface{}{
		"phone_number_ids": []interface{}{
			map[string]interface{}{"phone_no": "+255700000001", "date_collected": "2024-01-01", "disabled": false},
			map[string]interface{}{"phone_no": "+255700000002", "date_collected": "2024-02-01", "disabled": true},
			map[string]interface{}{"phone_no": "+255700000003"},
		},
	}

	if err := e.Expand(context.Background(), record); err != nil {
		t.Fatalf("expand: %v", err)
	}

	cmds, ok := record["phone_number_ids"].([]registry.RelationCommand)
	if !ok {
		t.Fatalf("expected relation commands, got %T", record["phone_number_ids"])
	}
	if len(cmds) != 3 {
		t.Fatalf("expected 3 commands, got %d", len(cmds))
	}
	for _, cmd := range cmds {
		if cmd.Op != registry.OpCreate {
			t.Fatalf("expected create-and-link op, got %d", cmd.Op)
		}
	}
	if cmds[0].Values["phone_no"] != "+255700000001" || cmds[1].Values["disabled"] != true {
		t.Fatalf("fields not copied verbatim: %v", cmds)
	}
	if cmds[2].Values["phone_no"] != "+255700000003" || cmds[2].Values["date_collected"] != nil {
		t.Fatalf("missing fields must pass through as null: %v", cmds[2].Values)
	}
}

func TestExpandRegistrantIDsResolvesType(t *testing.T) {
	e := NewExpander(newFakeSink(), mapper.TargetIndividual)
	record := map[string]interface{}{
		"reg_ids": []interface{}{
			map[string]interface{}{"id_type": "National ID", "value": "1234", "expiry_date": "2030-01-01"},
			map[string]interface{}{"id_type": "Library Card", "value": "9999"},
		},
	}

	if err := e.Expand(context.Background(), record); err != nil {
		t.Fatalf("expand: %v", err)
	}

	cmds := record["reg_ids"].([]registry.RelationCommand)
	if len(cmds) != 2 {
		t.Fatalf("expected 2 commands, got %d", len(cmds))
	}
	if cmds[0].Values["id_type"] != int64(11) {
		t.Fatalf("expected matched type id 11, got %v", cmds[0].Values["id_type"])
	}
	if cmds[1].Values["id_type"] != nil {
		t.Fatalf("unmatched type must yield null foreign key, got %v", cmds[1].Values["id_type"])
	}
	if cmds[1].Values["value"] != "9999" {
		t.Fatalf("value must pass through on lookup miss: %v", cmds[1].Values)
	}
}

func TestExpandMembersCommitsBeforeReferencing(t *testing.T) {
	sink := newFakeSink()
	e := NewExpander(sink, mapper.TargetGroup)
	e.now = fixedClock(2026, time.September, 1)

	record := map[string]interface{}{
		"group_membership_ids": []interface{}{
			map[string]interface{}{"name": "Asha Kumari Verma", "kind": "Head", "relationship_with_head": "Spouse", "gender": "Female", "age": float64(34)},
			map[string]interface{}{"name": "Ravi Verma", "kind": "Unknown Kind", "relationship_with_head": "Cousin"},
			map[string]interface{}{"birthdate": "2010-05-05"},
		},
	}

	if err := e.Expand(context.Background(), record); err != nil {
		t.Fatalf("expand: %v", err)
	}

	if len(sink.created) != 3 {
		t.Fatalf("expected 3 eager individual commits, got %d", len(sink.created))
	}

	memberships := record["group_membership_ids"].([]registry.RelationCommand)
	if len(memberships) != 3 {
		t.Fatalf("expected 3 membership references, got %d", len(memberships))
	}
	for i, m := range memberships {
		if m.Values["individual"] != int64(i+1) {
			t.Fatalf("membership %d must reference committed id %d, got %v", i, i+1, m.Values["individual"])
		}
	}

	// first member: kind matched, exposed as a link-existing command
	kinds := memberships[0].Values["kind"].([]registry.RelationCommand)
	if len(kinds) != 1 || kinds[0].Op != registry.OpLink || kinds[0].ID != 21 {
		t.Fatalf("expected link-existing kind 21, got %v", kinds)
	}
	// second member: kind missed, key omitted
	if _, present := memberships[1].Values["kind"]; present {
		t.Fatal("unmatched membership kind must be omitted")
	}

	// only the first member's relationship resolves
	relationships := record["related_1_ids"].([]registry.RelationCommand)
	if len(relationships) != 1 {
		t.Fatalf("expected 1 relationship reference, got %d", len(relationships))
	}
	rel := relationships[0].Values
	if rel["source"] != int64(1) || rel["relation"] != int64(31) {
		t.Fatalf("unexpected relationship reference: %v", rel)
	}
	if _, ok := rel["start_date"].(time.Time); !ok {
		t.Fatalf("relationship must carry a start date, got %v", rel["start_date"])
	}

	// derived individual fields
	first := sink.created[0]
	if first["given_name"] != "Asha" || first["family_name"] != "Verma" || first["addl_name"] != "Kumari" {
		t.Fatalf("unexpected name split: %v", first)
	}
	if first["is_registrant"] != true || first["is_group"] != false {
		t.Fatalf("member individuals must be individual registrants: %v", first)
	}
	if first["birthdate"] != "1992-09-01" {
		t.Fatalf("expected birthdate derived from age, got %v", first["birthdate"])
	}
	if first["gender"] != "F" {
		t.Fatalf("expected canonical gender code, got %v", first["gender"])
	}

	third := sink.created[2]
	if third["name"] != nil || third["given_name"] != nil {
		t.Fatalf("absent name must derive null name fields: %v", third)
	}
	if third["birthdate"] != "2010-05-05" {
		t.Fatalf("explicit birthdate must win: %v", third["birthdate"])
	}
}

func TestExpandMembersIgnoredForIndividualTarget(t *testing.T) {
	sink := newFakeSink()
	e := NewExpander(sink, mapper.TargetIndividual)
	raw := []interface{}{map[string]interface{}{"name": "Asha"}}
	record := map[string]interface{}{"group_membership_ids": raw}

	if err := e.Expand(context.Background(), record); err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(sink.created) != 0 {
		t.Fatal("individual target must not commit group members")
	}
	if _, ok := record["group_membership_ids"].([]interface{}); !ok {
		t.Fatal("raw membership array must be left untouched for individual target")
	}
}

func TestExpandMemberCommitFailureAborts(t *testing.T) {
	sink := newFakeSink()
	sink.createErr = registry.PersistenceError{}
	e := NewExpander(sink, mapper.TargetGroup)
	record := map[string]interface{}{
		"group_membership_ids": []interface{}{map[string]interface{}{"name": "Asha"}},
	}
	if err := e.Expand(context.Background(), record); err == nil {
		t.Fatal("expected sink failure to abort expansion")
	}
}

func TestIndividualNameSplit(t *testing.T) {
	e := NewExpander(newFakeSink(), mapper.TargetGroup)

	got := e.individualFromMember(context.Background(), map[string]interface{}{"name": "Asha"})
	if got["given_name"] != "Asha" || got["family_name"] != "Asha" || got["addl_name"] != "" {
		t.Fatalf("single-token name: %v", got)
	}

	got = e.individualFromMember(context.Background(), map[string]interface{}{"name": "Asha Devi Kumari Verma"})
	if got["addl_name"] != "Devi Kumari" {
		t.Fatalf("interior tokens must join with single spaces: %v", got["addl_name"])
	}
}

func TestResolveBirthdateFromAge(t *testing.T) {
	e := NewExpander(newFakeSink(), mapper.TargetGroup)
	e.now = fixedClock(2026, time.September, 1)

	got := e.resolveBirthdate(map[string]interface{}{"age": float64(10)})
	if got != "2016-09-01" {
		t.Fatalf("expected 2016-09-01, got %v", got)
	}

	if got := e.resolveBirthdate(map[string]interface{}{"age": float64(3000)}); got != nil {
		t.Fatalf("age beyond current year must yield null, got %v", got)
	}

	if got := e.resolveBirthdate(map[string]interface{}{}); got != nil {
		t.Fatalf("missing age and birthdate must yield null, got %v", got)
	}
}
