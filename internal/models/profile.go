package models

// Profile mirrors the identity provider's user record. The portal only reads
// it to address notification emails.
type Profile struct {
	BaseModel

	Email    string `gorm:"type:varchar(255);not null;uniqueIndex" json:"email"`
	FullName string `gorm:"type:varchar(255)" json:"full_name"`
	Role     string `gorm:"type:varchar(32);not null;default:'client'" json:"role"`
}
