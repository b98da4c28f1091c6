package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Catalog is the seed data for the four lookup tables, loadable from YAML so
// deployments can carry their own reference values.
type Catalog struct {
	IDTypes           []string       `yaml:"id_types" json:"id_types"`
	Genders           []GenderEntry  `yaml:"genders" json:"genders"`
	MembershipKinds   []string       `yaml:"membership_kinds" json:"membership_kinds"`
	RelationshipKinds []string       `yaml:"relationship_kinds" json:"relationship_kinds"`
}

type GenderEntry struct {
	Value string `yaml:"value" json:"value"`
	Code  string `yaml:"code" json:"code"`
}

func LoadCatalog(path string) (Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultCatalog(), err
	}
	var cat Catalog
	if err := yaml.Unmarshal(content, &cat); err != nil {
		return Catalog{}, err
	}
	if len(cat.IDTypes) == 0 && len(cat.Genders) == 0 &&
		len(cat.MembershipKinds) == 0 && len(cat.RelationshipKinds) == 0 {
		return Catalog{}, fmt.Errorf("lookup catalog empty")
	}
	return cat, nil
}

func DefaultCatalog() Catalog {
	return Catalog{
		IDTypes: []string{"National ID", "Passport", "Birth Certificate"},
		Genders: []GenderEntry{
			{Value: "Male", Code: "M"},
			{Value: "Female", Code: "F"},
			{Value: "Other", Code: "O"},
		},
		MembershipKinds:   []string{"Head", "Principal Recipient", "Alternate Recipient"},
		RelationshipKinds: []string{"Spouse", "Child", "Parent", "Sibling"},
	}
}

// Seed upserts the catalog rows by their natural keys. Existing rows keep
// their ids, so re-seeding never invalidates references.
func (r *Repository) Seed(ctx context.Context, cat Catalog) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, name := range cat.IDTypes {
			row := IDType{Name: name}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
				return err
			}
		}
		for _, g := range cat.Genders {
			row := GenderType{Value: g.Value, Code: g.Code}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
				return err
			}
		}
		for _, name := range cat.MembershipKinds {
			row := MembershipKind{Name: name}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
				return err
			}
		}
		for _, name := range cat.RelationshipKinds {
			row := RelationshipKind{Name: name}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
