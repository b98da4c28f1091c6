package registry

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrRegistrantNotFound = errors.New("registrant not found")

// Repository is the gorm-backed registry store. It satisfies Sink.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(
		&Registrant{},
		&PhoneNumber{},
		&RegistrantID{},
		&GroupMembership{},
		&Relationship{},
		&SupportingDocument{},
		&IDType{},
		&GenderType{},
		&MembershipKind{},
		&RelationshipKind{},
	)
}

// registrant field keys recognized on an incoming record; every other
// scalar key lands in the Extra JSON column.
var relationKeys = map[string]struct{}{
	"phone_number_ids":         {},
	"reg_ids":                  {},
	"group_membership_ids":     {},
	"related_1_ids":            {},
	"supporting_documents_ids": {},
}

// CreateRegistrant persists a fully mapped record and its relation commands
// in one transaction, returning the new registrant id.
func (r *Repository) CreateRegistrant(ctx context.Context, record map[string]interface{}) (int64, error) {
	now := time.Now().UTC()
	reg := Registrant{
		Name:         asString(record["name"]),
		GivenName:    asString(record["given_name"]),
		FamilyName:   asString(record["family_name"]),
		AddlName:     asString(record["addl_name"]),
		IsRegistrant: asBool(record["is_registrant"]),
		IsGroup:      asBool(record["is_group"]),
		Birthdate:    asString(record["birthdate"]),
		Gender:       asString(record["gender"]),
		ProfileImage: asString(record["profile_image"]),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	extra := datatypes.JSONMap{}
	for k, v := range record {
		if _, handled := relationKeys[k]; handled {
			continue
		}
		switch k {
		case "name", "given_name", "family_name", "addl_name", "is_registrant",
			"is_group", "birthdate", "gender", "profile_image":
		default:
			extra[k] = v
		}
	}
	if len(extra) > 0 {
		reg.Extra = extra
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&reg).Error; err != nil {
			return err
		}
		if err := r.createPhoneNumbers(tx, reg.ID, commands(record["phone_number_ids"])); err != nil {
			return err
		}
		if err := r.createRegistrantIDs(tx, reg.ID, commands(record["reg_ids"])); err != nil {
			return err
		}
		if err := r.createMemberships(tx, reg.ID, commands(record["group_membership_ids"])); err != nil {
			return err
		}
		if err := r.createRelationships(tx, reg.ID, commands(record["related_1_ids"])); err != nil {
			return err
		}
		return r.createSupportingDocuments(tx, reg.ID, commands(record["supporting_documents_ids"]))
	})
	if err != nil {
		return 0, PersistenceError{reason: err}
	}

	return reg.ID, nil
}

func (r *Repository) createPhoneNumbers(tx *gorm.DB, registrantID int64, cmds []RelationCommand) error {
	for _, cmd := range cmds {
		if cmd.Op != OpCreate {
			continue
		}
		row := PhoneNumber{
			RegistrantID:  registrantID,
			PhoneNo:       asString(cmd.Values["phone_no"]),
			DateCollected: asString(cmd.Values["date_collected"]),
			Disabled:      asBool(cmd.Values["disabled"]),
			CreatedAt:     time.Now().UTC(),
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) createRegistrantIDs(tx *gorm.DB, registrantID int64, cmds []RelationCommand) error {
	for _, cmd := range cmds {
		if cmd.Op != OpCreate {
			continue
		}
		row := RegistrantID{
			RegistrantID: registrantID,
			IDTypeID:     asIDRef(cmd.Values["id_type"]),
			Value:        asString(cmd.Values["value"]),
			ExpiryDate:   asString(cmd.Values["expiry_date"]),
			CreatedAt:    time.Now().UTC(),
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) createMemberships(tx *gorm.DB, groupID int64, cmds []RelationCommand) error {
	for _, cmd := range cmds {
		if cmd.Op != OpCreate {
			continue
		}
		row := GroupMembership{
			GroupID:      groupID,
			IndividualID: asInt64(cmd.Values["individual"]),
			CreatedAt:    time.Now().UTC(),
		}
		if kinds, ok := cmd.Values["kind"].([]RelationCommand); ok {
			for _, kind := range kinds {
				if kind.Op == OpLink {
					id := kind.ID
					row.KindID = &id
					break
				}
			}
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) createRelationships(tx *gorm.DB, registrantID int64, cmds []RelationCommand) error {
	for _, cmd := range cmds {
		if cmd.Op != OpCreate {
			continue
		}
		start, _ := cmd.Values["start_date"].(time.Time)
		row := Relationship{
			RegistrantID: registrantID,
			SourceID:     asInt64(cmd.Values["source"]),
			RelationID:   asInt64(cmd.Values["relation"]),
			StartDate:    start,
			CreatedAt:    time.Now().UTC(),
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) createSupportingDocuments(tx *gorm.DB, registrantID int64, cmds []RelationCommand) error {
	for _, cmd := range cmds {
		if cmd.Op != OpCreate {
			continue
		}
		row := SupportingDocument{
			RegistrantID: registrantID,
			BackendID:    asInt64(cmd.Values["backend_id"]),
			Name:         asString(cmd.Values["name"]),
			Data:         asString(cmd.Values["data"]),
			CreatedAt:    time.Now().UTC(),
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) FindIDType(ctx context.Context, name string) (LookupMatch, bool, error) {
	var row IDType
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return LookupMatch{}, false, nil
	}
	if err != nil {
		return LookupMatch{}, false, PersistenceError{reason: err}
	}
	return LookupMatch{ID: row.ID, Name: row.Name}, true, nil
}

func (r *Repository) FindMembershipKind(ctx context.Context, name string) (LookupMatch, bool, error) {
	var row MembershipKind
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return LookupMatch{}, false, nil
	}
	if err != nil {
		return LookupMatch{}, false, PersistenceError{reason: err}
	}
	return LookupMatch{ID: row.ID, Name: row.Name}, true, nil
}

func (r *Repository) FindRelationshipKind(ctx context.Context, name string) (LookupMatch, bool, error) {
	var row RelationshipKind
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return LookupMatch{}, false, nil
	}
	if err != nil {
		return LookupMatch{}, false, PersistenceError{reason: err}
	}
	return LookupMatch{ID: row.ID, Name: row.Name}, true, nil
}

func (r *Repository) FindGender(ctx context.Context, value string) (GenderMatch, bool, error) {
	var row GenderType
	err := r.db.WithContext(ctx).Where("value = ?", value).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return GenderMatch{}, false, nil
	}
	if err != nil {
		return GenderMatch{}, false, PersistenceError{reason: err}
	}
	return GenderMatch{ID: row.ID, Value: row.Value, Code: row.Code}, true, nil
}

// ListRegistrants serves the verification read surface.
func (r *Repository) ListRegistrants(ctx context.Context, isGroup *bool, limit int) ([]Registrant, error) {
	q := r.db.WithContext(ctx).Order("id desc").Limit(limit)
	if isGroup != nil {
		q = q.Where("is_group = ?", *isGroup)
	}
	var rows []Registrant
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repository) GetRegistrant(ctx context.Context, id int64) (Registrant, error) {
	var row Registrant
	err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Registrant{}, ErrRegistrantNotFound
	}
	return row, err
}

func commands(v interface{}) []RelationCommand {
	cmds, _ := v.([]RelationCommand)
	return cmds
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asBool(v interface{}) bool {
	b, _ := v.(bool)
	return b
}

func asInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func asIDRef(v interface{}) *int64 {
	switch n := v.(type) {
	case int64:
		return &n
	case *int64:
		return n
	default:
		return nil
	}
}
