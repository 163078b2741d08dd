package model

// AddressIndexSequence is the counter row behind derivation index
// allocation. next_value is the index the next caller will receive.
type AddressIndexSequence struct {
	Name      string `gorm:"column:name;type:varchar(32);primaryKey"`
	NextValue int64  `gorm:"column:next_value;not null;default:0"`
}

func (AddressIndexSequence) TableName() string {
	return "address_index_sequences"
}
