package studies

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Patient is owned by the records system; ingestion only checks existence.
// Demographic columns hold ciphertext and are never decoded here.
type Patient struct {
	ID                  uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	MedicalRecordNumber string    `gorm:"column:medical_record_number;not null;uniqueIndex" json:"medical_record_number"`

	FirstNameEncrypted   []byte `gorm:"column:first_name_encrypted" json:"-"`
	LastNameEncrypted    []byte `gorm:"column:last_name_encrypted" json:"-"`
	DateOfBirthEncrypted []byte `gorm:"column:date_of_birth_encrypted" json:"-"`
	Gender               string `gorm:"column:gender" json:"gender,omitempty"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (Patient) TableName() string { return "patients" }

func (p *Patient) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
