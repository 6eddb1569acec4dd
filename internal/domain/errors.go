package domain

import "errors"

// Ошибки движка предпочтений. Их возвращают вызывающему как есть, без повторов.
var (
	ErrInsufficientData  = errors.New("для матча нужно минимум два оценённых бургера")
	ErrInvalidWinner     = errors.New("победитель должен быть одним из двух бургеров пары")
	ErrUnknownPair       = errors.New("пара не найдена среди открытых раундов пользователя")
	ErrAlreadyResolved   = errors.New("раунд уже разрешён")
	ErrIncompleteReorder = errors.New("новый порядок должен содержать ровно текущий набор топ-5")
	ErrDuplicateEntry    = errors.New("бургер встречается в топ-5 дважды")
	ErrStalePreview      = errors.New("автоматический топ-5 изменился, запросите превью заново")
	ErrRateLimited       = errors.New("слишком много матчей, попробуйте позже")
)

// Ошибки рейтинга и витрины.
var (
	ErrBurgerNotFound          = errors.New("burger not found")
	ErrInvalidSlot             = errors.New("featured slot must be 1, 2 or 3")
	ErrConflictingFeaturedSlot = errors.New("featured slot was occupied by another burger")
	ErrMalformedStats          = errors.New("malformed burger statistics")
)
