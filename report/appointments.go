package report

import (
	"strconv"
	"strings"
	"time"
)

const (
	acuityDatetime = "2006-01-02T15:04:05-0700"
	acuityDate     = "January 2, 2006"
)

// NormalizeAppointment flattens an Acuity appointment. The year comes from
// the appointment time, not the booking time.
func NormalizeAppointment(a RawAppointment) (*Record, error) {
	id := strconv.FormatInt(a.ID, 10)
	if a.ID == 0 {
		return nil, malformed("appointment", id, "id", nil)
	}
	year, err := appointmentYear(a)
	if err != nil {
		return nil, malformed("appointment", id, "datetime", err)
	}

	appt := &Appointment{
		FirstName:  strings.TrimSpace(a.FirstName),
		LastName:   strings.TrimSpace(a.LastName),
		Type:       strings.TrimSpace(a.Type),
		Calendar:   a.Calendar,
		Date:       a.Date,
		Time:       a.Time,
		EndTime:    a.EndTime,
		Price:      a.Price,
		AmountPaid: a.AmountPaid,
		Paid:       a.Paid,
		Notes:      a.Notes,
	}
	var answers []string
	for _, f := range a.Forms {
		appt.HasForms = true
		for _, v := range f.Values {
			if strings.TrimSpace(v.Value) == "" {
				continue
			}
			if appt.SwimAbility == "" && strings.Contains(strings.ToLower(v.Name), "swim") {
				appt.SwimAbility = v.Value
			}
			answers = append(answers, v.Name+": "+v.Value)
		}
	}
	appt.FormAnswers = strings.Join(answers, "; ")

	return &Record{
		Kind:        KindAppointment,
		ID:          id,
		Year:        year,
		Name:        strings.TrimSpace(appt.FirstName + " " + appt.LastName),
		Email:       strings.TrimSpace(a.Email),
		Phone:       strings.TrimSpace(a.Phone),
		Appointment: appt,
	}, nil
}

func appointmentYear(a RawAppointment) (int, error) {
	t, err := time.Parse(acuityDatetime, a.Datetime)
	if err == nil {
		return t.Year(), nil
	}
	if d, dateErr := time.Parse(acuityDate, a.Date); dateErr == nil {
		return d.Year(), nil
	}
	return 0, err
}

// NormalizeSchedulingOrder flattens an order placed through the scheduler
// (packages, gift certificates). It only ever feeds the transactions report.
func NormalizeSchedulingOrder(o RawSchedulingOrder) (*Record, error) {
	id := strconv.FormatInt(o.ID, 10)
	if o.ID == 0 {
		return nil, malformed("scheduling order", id, "id", nil)
	}
	t, err := time.Parse(acuityDatetime, o.Time)
	if err != nil {
		return nil, malformed("scheduling order", id, "time", err)
	}

	item := strings.TrimSpace(o.Title)
	if item == "" {
		names := make([]string, 0, len(o.LineItems))
		for _, li := range o.LineItems {
			names = append(names, li.Name)
		}
		item = strings.Join(names, ", ")
	}

	return &Record{
		Kind:  KindSchedulingOrder,
		ID:    id,
		Year:  t.Year(),
		Name:  strings.TrimSpace(o.FirstName + " " + o.LastName),
		Email: strings.TrimSpace(o.Email),
		Phone: strings.TrimSpace(o.Phone),
		Appointment: &Appointment{
			FirstName:  o.FirstName,
			LastName:   o.LastName,
			Type:       item,
			Date:       t.Format(acuityDate),
			Time:       t.Format("3:04pm"),
			Price:      o.Subtotal,
			AmountPaid: o.Total,
			Notes:      o.Notes,
		},
	}, nil
}
