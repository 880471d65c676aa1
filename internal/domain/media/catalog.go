package media

import (
	"fmt"

	"gorm.io/gorm"
)

func campaignImagesQuery(db *gorm.DB, campaignID string) *gorm.DB {
	return db.Model(&CampaignImage{}).Where("campaign_id = ?", campaignID)
}

// ListByCampaign returns a campaign's images, oldest first.
func ListByCampaign(db *gorm.DB, campaignID string) ([]CampaignImage, error) {
	var images []CampaignImage
	if err := campaignImagesQuery(db, campaignID).Order("created_at ASC").Find(&images).Error; err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	return images, nil
}

// CountByCategory tallies a campaign's images per category.
func CountByCategory(db *gorm.DB, campaignID string) (map[Category]int64, error) {
	type row struct {
		Category Category
		Count    int64
	}
	var rows []row
	err := campaignImagesQuery(db, campaignID).
		Select("category, COUNT(*) AS count").
		Group("category").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count images: %w", err)
	}

	out := make(map[Category]int64, len(rows))
	for _, r := range rows {
		out[r.Category] = r.Count
	}
	return out, nil
}

// DeleteByCampaign bulk-deletes a campaign's images and returns the storage
// keys that were referenced, so blobs can be removed after commit.
func DeleteByCampaign(db *gorm.DB, campaignID string) ([]string, error) {
	var keys []string
	if err := campaignImagesQuery(db, campaignID).Pluck("storage_key", &keys).Error; err != nil {
		return nil, fmt.Errorf("collect image keys: %w", err)
	}
	if err := db.Where("campaign_id = ?", campaignID).Delete(&CampaignImage{}).Error; err != nil {
		return nil, fmt.Errorf("delete images: %w", err)
	}
	return keys, nil
}
