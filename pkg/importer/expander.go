package importer

import (
	"context"
	"strings"
	"time"

	"github.com/civicbridge/platform/pkg/common/logger"
	"github.com/civicbridge/platform/pkg/mapper"
	"github.com/civicbridge/platform/pkg/registry"
)

// Expander materializes the one-to-many entities embedded in a mapped
// record: phone numbers, identity documents, and (for groups) member
// individuals with their head-of-household relationships. Member
// individuals are committed through the sink as they are encountered — the
// membership and relationship references need the assigned ids.
type Expander struct {
	sink       registry.Sink
	targetKind string
	now        func() time.Time
}

func NewExpander(sink registry.Sink, targetKind string) *Expander {
	return &Expander{sink: sink, targetKind: targetKind, now: time.Now}
}

// Expand rewrites the relation keys of record in place. Lookup misses
// degrade the affected field and log a warning; only sink failures abort.
func (e *Expander) Expand(ctx context.Context, record map[string]interface{}) error {
	if raw, ok := record["phone_number_ids"].([]interface{}); ok {
		record["phone_number_ids"] = e.expandPhoneNumbers(raw)
	}

	if raw, ok := record["group_membership_ids"].([]interface{}); ok && e.targetKind == mapper.TargetGroup {
		memberships, relationships, err := e.expandMembers(ctx, raw)
		if err != nil {
			return err
		}
		record["group_membership_ids"] = memberships
		record["related_1_ids"] = relationships
	}

	if raw, ok := record["reg_ids"].([]interface{}); ok {
		record["reg_ids"] = e.expandRegistrantIDs(ctx, raw)
	}

	return nil
}

func (e *Expander) expandPhoneNumbers(raw []interface{}) []registry.RelationCommand {
	cmds := make([]registry.RelationCommand, 0, len(raw))
	for _, entry := range raw {
		phone := asMap(entry)
		cmds = append(cmds, registry.Create(map[string]interface{}{
			"phone_no":       phone["phone_no"],
			"date_collected": phone["date_collected"],
			"disabled":       phone["disabled"],
		}))
	}
	return cmds
}

func (e *Expander) expandRegistrantIDs(ctx context.Context, raw []interface{}) []registry.RelationCommand {
	cmds := make([]registry.RelationCommand, 0, len(raw))
	for _, entry := range raw {
		regID := asMap(entry)

		var typeRef interface{}
		typeName := stringValue(regID["id_type"])
		if match, found, err := e.sink.FindIDType(ctx, typeName); err != nil {
			logger.Log.WithError(err).WithField("id_type", typeName).Warn("id type lookup failed")
		} else if found {
			typeRef = match.ID
		} else {
			logger.Log.WithField("id_type", typeName).Warn("id type not found, storing document without type")
		}

		cmds = append(cmds, registry.Create(map[string]interface{}{
			"id_type":     typeRef,
			"value":       regID["value"],
			"expiry_date": regID["expiry_date"],
		}))
	}
	return cmds
}

func (e *Expander) expandMembers(ctx context.Context, raw []interface{}) ([]registry.RelationCommand, []registry.RelationCommand, error) {
	memberships := make([]registry.RelationCommand, 0, len(raw))
	relationships := make([]registry.RelationCommand, 0, len(raw))

	for _, entry := range raw {
		member := asMap(entry)

		individualID, err := e.sink.CreateRegistrant(ctx, e.individualFromMember(ctx, member))
		if err != nil {
			return nil, nil, err
		}

		membership := map[string]interface{}{"individual": individualID}
		kindName := stringValue(member["kind"])
		if kind, found, err := e.sink.FindMembershipKind(ctx, kindName); err != nil {
			logger.Log.WithError(err).WithField("kind", kindName).Warn("membership kind lookup failed")
		} else if found {
			membership["kind"] = []registry.RelationCommand{registry.Link(kind.ID)}
		} else {
			logger.Log.WithField("kind", kindName).Warn("membership kind not found")
		}
		memberships = append(memberships, registry.Create(membership))

		relationName := stringValue(member["relationship_with_head"])
		if relation, found, err := e.sink.FindRelationshipKind(ctx, relationName); err != nil {
			logger.Log.WithError(err).WithField("relation", relationName).Warn("relationship kind lookup failed")
		} else if found {
			relationships = append(relationships, registry.Create(map[string]interface{}{
				"source":     individualID,
				"relation":   relation.ID,
				"start_date": e.now(),
			}))
		} else {
			logger.Log.Warn("No relation defined for member")
		}
	}

	return memberships, relationships, nil
}

// individualFromMember derives an individual registrant record from one
// group-membership entry.
func (e *Expander) individualFromMember(ctx context.Context, member map[string]interface{}) map[string]interface{} {
	record := map[string]interface{}{
		"is_registrant": true,
		"is_group":      false,
	}

	if name, ok := member["name"].(string); ok {
		parts := strings.Split(name, " ")
		record["name"] = name
		record["given_name"] = parts[0]
		record["family_name"] = parts[len(parts)-1]
		addl := ""
		if len(parts) > 2 {
			addl = strings.Join(parts[1:len(parts)-1], " ")
		}
		record["addl_name"] = addl
	} else {
		record["name"] = nil
		record["given_name"] = nil
		record["family_name"] = nil
		record["addl_name"] = nil
	}

	record["birthdate"] = e.resolveBirthdate(member)
	record["gender"] = e.resolveGender(ctx, member["gender"])

	return record
}

func (e *Expander) resolveBirthdate(member map[string]interface{}) interface{} {
	if dob := stringValue(member["birthdate"]); dob != "" {
		return dob
	}

	age, ok := intValue(member["age"])
	if !ok {
		return nil
	}

	now := e.now()
	birthYear := now.Year() - age
	if birthYear < 0 {
		logger.Log.WithField("age", age).Warn("Future birthdate is not allowed.")
		return nil
	}
	return time.Date(birthYear, now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).Format("2006-01-02")
}

func (e *Expander) resolveGender(ctx context.Context, value interface{}) interface{} {
	genderVal := stringValue(value)
	if genderVal == "" {
		return nil
	}
	gender, found, err := e.sink.FindGender(ctx, genderVal)
	if err != nil {
		logger.Log.WithError(err).WithField("gender", genderVal).Warn("gender lookup failed")
		return nil
	}
	if !found {
		return nil
	}
	return gender.Code
}

func asMap(v interface{}) map[string]interface{} {
	if m, ok := v.(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{}
}

func stringValue(v interface{}) string {
	s, _ := v.(string)
	return s
}

func intValue(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
