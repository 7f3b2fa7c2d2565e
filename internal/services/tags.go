package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"weblog/internal/content"
	"weblog/internal/db"
	"weblog/internal/models"
	"weblog/internal/search"
)

var (
	ErrSameTag     = errors.New("cannot merge a tag into itself")
	ErrTagNotFound = errors.New("tag not found")
	ErrInvalidTag  = errors.New("invalid tag")
)

// MergeDetails is stored on the TagMerge audit row.
type MergeDetails struct {
	Moved         map[string][]uint `json:"moved"`
	PreviousNames int               `json:"previous_names"`
}

// MergeTags moves every item tagged loser onto winner, records the old name,
// and deletes loser, all in one transaction. Search documents for the moved
// items are refreshed after commit.
func MergeTags(winnerID, loserID uint) (*models.TagMerge, error) {
	if winnerID == loserID {
		return nil, ErrSameTag
	}
	var merge models.TagMerge
	details := MergeDetails{Moved: map[string][]uint{}}

	err := db.DB.Transaction(func(tx *gorm.DB) error {
		var winner, loser models.Tag
		if err := tx.First(&winner, winnerID).Error; err != nil {
			return tagLookupErr(err)
		}
		if err := tx.First(&loser, loserID).Error; err != nil {
			return tagLookupErr(err)
		}

		for _, k := range content.Kinds {
			var ids []uint
			err := tx.Table(k.TagTable).Where("tag_id = ?", loser.ID).Order(k.FK).Pluck(k.FK, &ids).Error
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				continue
			}
			details.Moved[k.Name] = ids
			// items already carrying winner just lose the loser row
			err = tx.Exec(
				"INSERT INTO "+k.TagTable+" ("+k.FK+", tag_id) SELECT "+k.FK+", ? FROM "+k.TagTable+
					" WHERE tag_id = ? ON CONFLICT DO NOTHING", winner.ID, loser.ID).Error
			if err != nil {
				return err
			}
			if err := tx.Table(k.TagTable).Where("tag_id = ?", loser.ID).Delete(nil).Error; err != nil {
				return err
			}
		}

		res := tx.Model(&models.PreviousTagName{}).Where("tag_id = ?", loser.ID).Update("tag_id", winner.ID)
		if res.Error != nil {
			return res.Error
		}
		details.PreviousNames = int(res.RowsAffected)
		if err := tx.Create(&models.PreviousTagName{TagID: winner.ID, PreviousName: loser.Tag}).Error; err != nil {
			return err
		}

		raw, err := json.Marshal(details)
		if err != nil {
			return err
		}
		merge = models.TagMerge{
			SourceTagName:      loser.Tag,
			DestinationTagID:   &winner.ID,
			DestinationTagName: winner.Tag,
			Details:            raw,
		}
		if err := tx.Create(&merge).Error; err != nil {
			return err
		}
		return tx.Delete(&loser).Error
	})
	if err != nil {
		return nil, err
	}

	for kind, ids := range details.Moved {
		for _, id := range ids {
			search.GetIndexer().Schedule(kind, id)
		}
	}
	log.Info().Str("from", merge.SourceTagName).Str("to", merge.DestinationTagName).Msg("tags merged")
	return &merge, nil
}

func tagLookupErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrTagNotFound
	}
	return err
}

// ResolvePreviousName finds the current tag for a retired name.
func ResolvePreviousName(name string) (*models.Tag, error) {
	var prev models.PreviousTagName
	err := db.DB.Preload("Tag").Where("previous_name = ?", name).Order("id DESC").First(&prev).Error
	if err != nil {
		return nil, err
	}
	return &prev.Tag, nil
}

// NormalizeTag lowercases and validates a tag name: letters, digits and
// hyphens only.
func NormalizeTag(name string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || len(name) > 255 {
		return "", ErrInvalidTag
	}
	for _, r := range name {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return "", ErrInvalidTag
		}
	}
	return name, nil
}

// AddTag attaches tag (created when missing) to the item of kind/id.
func AddTag(kind string, id uint, name string) (*models.Tag, error) {
	name, err := NormalizeTag(name)
	if err != nil {
		return nil, err
	}
	k, ok := content.KindByName(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s", content.ErrUnknownKind, kind)
	}
	var tag models.Tag
	err = db.DB.Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Table(k.Table).Where("id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return gorm.ErrRecordNotFound
		}
		if err := tx.Where(models.Tag{Tag: name}).FirstOrCreate(&tag).Error; err != nil {
			return err
		}
		return tx.Exec("INSERT INTO "+k.TagTable+" ("+k.FK+", tag_id) VALUES (?, ?) ON CONFLICT DO NOTHING", id, tag.ID).Error
	})
	if err != nil {
		return nil, err
	}
	search.GetIndexer().Schedule(kind, id)
	return &tag, nil
}

// SetTags replaces the tags on an item, creating tags as needed.
func SetTags(tx *gorm.DB, item interface{}, names []string) error {
	tags := make([]models.Tag, 0, len(names))
	seen := map[string]bool{}
	for _, n := range names {
		n, err := NormalizeTag(n)
		if err != nil || seen[n] {
			continue
		}
		seen[n] = true
		var t models.Tag
		if err := tx.Where(models.Tag{Tag: n}).FirstOrCreate(&t).Error; err != nil {
			return err
		}
		tags = append(tags, t)
	}
	return tx.Model(item).Association("Tags").Replace(tags)
}

// Autocomplete suggests up to five tags containing q: an exact match first,
// then by usage, then by length.
func Autocomplete(q string) ([]content.TagUsage, error) {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return []content.TagUsage{}, nil
	}
	usage, err := content.TagUsageMatching(db.DB, q)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(usage, func(i, j int) bool {
		a, b := usage[i], usage[j]
		if (a.Tag == q) != (b.Tag == q) {
			return a.Tag == q
		}
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return len(a.Tag) < len(b.Tag)
	})
	if len(usage) > 5 {
		usage = usage[:5]
	}
	return usage, nil
}
