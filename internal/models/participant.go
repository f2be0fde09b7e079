package models

// CatalogParticipant 광고 카탈로그가 제공하는 배틀 참가 후보
// 이 서비스는 카탈로그를 읽기만 하고 소유하지 않는다
type CatalogParticipant struct {
	ID          string `json:"id" db:"id"`
	DisplayName string `json:"displayName" db:"display_name"`
	ImageRef    string `json:"imageRef" db:"image_ref"`
}
